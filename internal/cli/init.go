// Package cli holds the despesas command line client and the start-up
// helpers shared by every binary.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"despesas/internal/log"
)

// SetupLogger builds a logger from level and format names, falling back to
// info and text when they do not parse, and makes it the default.
func SetupLogger(level, format string, w io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	if w != nil {
		cfg.Output = w
	}
	if l, err := log.ParseLevel(level); err == nil {
		cfg.Level = l
	}
	if f, err := log.ParseFormat(format); err == nil {
		cfg.Format = f
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
