package main

import (
	"fmt"
	"os"

	"despesas/internal/cli"
	"despesas/internal/config"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.LoadClient()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	code := cli.Execute(ctx, app, os.Args[1:])
	cancel()
	os.Exit(code)
}
