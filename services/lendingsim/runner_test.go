package lendingsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenlending/config"
	"tokenlending/runtime"
	"tokenlending/storage"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env, err := NewEnv(config.Default(), storage.NewMemDB(), logger)
	require.NoError(t, err)
	require.NoError(t, env.Bank.SetSlot(1_000))
	return NewRunner(env, logger)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/sol_usdc.yaml")
	require.NoError(t, err)
	r := newTestRunner(t)

	report, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Steps, len(sc.Steps))
	for _, step := range report.Steps {
		require.True(t, step.OK, "step %d %s: %s", step.Index, step.Action, step.Failure)
	}
	require.NotNil(t, report.Steps[2].Code)
	require.Equal(t, uint64(1_100), report.FinalSlot)

	bob := r.actors["bob"]
	seized, err := r.env.Balance(bob.liquidity["SOL"])
	require.NoError(t, err)
	require.Greater(t, seized, uint64(0))

	alice := r.actors["alice"]
	usdc, err := r.env.Balance(alice.liquidity["USDC"])
	require.NoError(t, err)
	require.Less(t, usdc, uint64(90_000_000))

	require.Len(t, report.Reserves, 2)
	require.Equal(t, "USDC", report.Reserves[1].Symbol)
	require.Equal(t, "16.000000000000000000", report.Reserves[0].MarketPrice)
	require.Greater(t, report.Reserves[1].FeeReceiver, uint64(0))
	require.Len(t, report.Obligations, 1)
	require.False(t, report.Obligations[0].Liquidatable)
}

func TestRunStopsOnUnexpectedOutcome(t *testing.T) {
	sc, err := ParseScenario([]byte(`name: overdraw
reserves:
  - {symbol: USDC, decimals: 6, price: "1", liquidity: "10", config: {loan_to_value: "50", liquidation_threshold: "55"}}
actors:
  alice: {USDC: "1"}
steps:
  - {action: supply, actor: alice, reserve: USDC, amount: "2"}
  - {action: supply, actor: alice, reserve: USDC, amount: "1"}
`))
	require.NoError(t, err)

	report, err := newTestRunner(t).Run(context.Background(), sc)
	require.ErrorContains(t, err, "step 0 (supply)")
	require.Len(t, report.Steps, 1)
	require.False(t, report.Steps[0].OK)
	require.Len(t, report.Reserves, 1)
}

func TestRouter(t *testing.T) {
	store := &ReportStore{}
	srv := httptest.NewServer(NewRouter(store, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/report")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	store.Set(&Report{RunID: "run-1", Scenario: "demo"})
	resp, err = http.Get(srv.URL + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "run-1", got.RunID)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	require.Equal(t, http.StatusOK, metrics.StatusCode)
}

type failingWriter struct {
	header http.Header
}

func (w *failingWriter) Header() http.Header { return w.header }

func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func (w *failingWriter) WriteHeader(int) {}

func TestRouterLogsWriteErrors(t *testing.T) {
	var logs bytes.Buffer
	store := &ReportStore{}
	store.Set(&Report{RunID: "run-1", Scenario: "demo"})
	router := NewRouter(store, slog.New(slog.NewJSONHandler(&logs, nil)))

	router.ServeHTTP(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/report", nil))
	require.Contains(t, logs.String(), `"msg":"encode report"`)
	require.Contains(t, logs.String(), `"run_id":"run-1"`)
	require.Contains(t, logs.String(), "connection reset")

	logs.Reset()
	router.ServeHTTP(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Contains(t, logs.String(), `"msg":"write health response"`)
}

func TestTxBuilderKeepsFirstError(t *testing.T) {
	var b txBuilder
	first := errors.New("derive authority")
	b.add(runtime.Instruction{}, nil)
	b.add(runtime.Instruction{}, first)
	b.add(runtime.Instruction{}, errors.New("later"))
	b.add(runtime.Instruction{}, nil)
	require.Len(t, b.ixs, 1)

	err := newTestRunner(t).submit(context.Background(), nil, &b)
	require.ErrorIs(t, err, first)
	require.ErrorContains(t, err, "build transaction")
}
