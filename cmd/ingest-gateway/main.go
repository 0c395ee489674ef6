// Command ingest-gateway runs the Ingest Gateway HTTP server: the inbound
// authentication boundary that forwards validated CI log bundles to the
// Log Processor.
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
	"github.com/praxi/ci-triage/internal/gateway"
	"github.com/praxi/ci-triage/internal/logging"
)

const shutdownGrace = 10 * time.Second

func main() {
	addr := os.Getenv("INGEST_GATEWAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	verbosity := 0
	if v := os.Getenv("INGEST_GATEWAY_VERBOSITY"); v != "" {
		fmt.Sscanf(v, "%d", &verbosity)
	}
	logger := logging.New(logging.LevelFromCount(verbosity))

	cfg := config.LoadGatewayConfig()
	if cfg.AgentToken == "" {
		logger.Warn("AGENT_TOKEN is not set; every inbound request will be rejected as misconfigured")
	}
	if cfg.DeveloperAgentURL == "" {
		logger.Warn("DEVELOPER_AGENT_URL is not set; forwarding to the Log Processor will fail")
	}

	handler := gateway.New(cfg.AgentToken, cfg.DeveloperAgentURL, cfg.DeveloperAgentToken, logger)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ingest-gateway listening", "addr", addr)
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
