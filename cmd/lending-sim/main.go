package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tokenlending/services/lendingsim"
)

func main() {
	var (
		cfgPath      string
		scenarioPath string
		inMemory     bool
		serve        bool
		quiet        bool
	)
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the lending config; created with defaults when missing")
	flag.StringVar(&scenarioPath, "scenario", "services/lendingsim/testdata/sol_usdc.yaml", "path to the scenario to play")
	flag.BoolVar(&inMemory, "memory", false, "keep the ledger in memory instead of under DataDir")
	flag.BoolVar(&serve, "serve", false, "keep serving /metrics, /healthz and /report after the run")
	flag.BoolVar(&quiet, "quiet", false, "do not print the JSON report")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := lendingsim.Options{
		ConfigPath:   cfgPath,
		ScenarioPath: scenarioPath,
		InMemory:     inMemory,
		Serve:        serve,
	}
	if !quiet {
		opts.Output = os.Stdout
	}
	if err := lendingsim.Run(ctx, opts); err != nil {
		log.Fatalf("lending-sim: %v", err)
	}
}
