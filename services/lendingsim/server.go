package lendingsim

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves health, Prometheus metrics and the latest run report.
func NewRouter(store *ReportStore, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("write health response", slog.Any("error", err))
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/report", func(w http.ResponseWriter, r *http.Request) {
		report := store.Latest()
		if report == nil {
			http.Error(w, "no report yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.Warn("encode report", slog.String("run_id", report.RunID), slog.Any("error", err))
		}
	})
	return r
}
