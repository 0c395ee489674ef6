// Command log-processor runs the Log Processor HTTP server: persistence,
// classification, plan derivation, and self-heal/fix-agent dispatch for
// each validated CI log bundle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praxi/ci-triage/internal/config"
	"github.com/praxi/ci-triage/internal/enrich"
	"github.com/praxi/ci-triage/internal/logging"
	"github.com/praxi/ci-triage/internal/processor"
)

const shutdownGrace = 10 * time.Second

func main() {
	addr := os.Getenv("LOG_PROCESSOR_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	verbosity := 0
	if v := os.Getenv("LOG_PROCESSOR_VERBOSITY"); v != "" {
		fmt.Sscanf(v, "%d", &verbosity)
	}
	logger := logging.New(logging.LevelFromCount(verbosity))

	cfg := config.LoadProcessorConfig()
	if cfg.DeveloperAgentToken == "" {
		logger.Warn("DEVELOPER_AGENT_TOKEN is not set; every inbound request will be rejected as misconfigured")
	}

	handler := processor.New(cfg.DeveloperAgentToken, logger)
	if summarizer, ok := enrich.NewFromEnv(); ok {
		handler.Enricher = summarizer
		logger.Info("LLM enrichment enabled")
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("log-processor listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server exited unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
