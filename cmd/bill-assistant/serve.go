package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-assistant/internal/bill"
)

func newServeCommand(rootFlags *ff.FlagSet, cfg *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port       = fs.IntLong("port", 8080, "HTTP server port")
		llmTimeout = fs.DurationLong("llm-timeout", 2*time.Minute, "Maximum time allowed for one model request")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "bill-assistant serve [FLAGS]",
		ShortHelp: "run the HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := cfg.setupLogging(); err != nil {
				return err
			}
			return serve(ctx, cfg, *port, *llmTimeout)
		},
	}
}

func serve(ctx context.Context, cfg *rootConfig, port int, timeout time.Duration) error {
	generator, err := cfg.newGenerator()
	if err != nil {
		return fmt.Errorf("initializing LLM: %w", err)
	}
	defer generator.Close()

	recognizer, err := cfg.newRecognizer()
	if err != nil {
		return fmt.Errorf("initializing OCR: %w", err)
	}
	defer recognizer.Close()

	server := bill.NewServer(bill.NewService(generator), recognizer, timeout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", port)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx, addr)
	})
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}
