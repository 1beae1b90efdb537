package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"watchtower/internal/app"
	"watchtower/internal/config"
	"watchtower/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	application, err := app.NewApp(cfg, log)
	if err == nil {
		err = application.Run(ctx)
	}
	if err != nil {
		log.Error("Server stopped: %v", err)
		code = 1
	}
	_ = log.Close()
	os.Exit(code)
}
