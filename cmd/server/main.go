package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/app"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "interviewer",
	Short:         "Interview session orchestrator",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and live interview server",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Abandon stale in-progress sessions once and exit",
	RunE:  runSweep,
}

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides HTTP_ADDRESS)")
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	boot, err := zap.NewProduction()
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg := config.Load(boot)
	_ = boot.Sync()

	var log *zap.Logger
	if cfg.Development {
		log, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(cfg.LogLevel); perr == nil {
			zcfg.Level = lvl
		}
		log, err = zcfg.Build()
	}
	return cfg, log, err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if addrFlag != "" {
		cfg.HTTPAddress = addrFlag
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper := a.Sweeper()
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	srv := a.Server()
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTPAddress))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	// Hijacked sockets are not tracked by Shutdown; closing them finalizes
	// every live session.
	a.Registry.CloseAll()
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Sweeper().Sweep(cmd.Context())
	if err != nil {
		return err
	}
	log.Info("sweep finished", zap.Int("abandoned", n))
	return nil
}
