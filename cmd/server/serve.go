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
	"github.com/workhours/overtime/api"
)

// GRACEFUL SHUTDOWN:
//   On SIGINT/SIGTERM:
//   1. Stop the monthly cron (waits for a running pass)
//   2. Stop accepting new connections, finish active requests (30s)
//   3. Stop the dispatcher (waits for in-flight report tasks)
//   4. Close the database

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.cfg
		logger := a.logger

		if cfg.Auth.Secret == "" {
			return errors.New("OVERTIME_AUTH_SECRET is required to serve")
		}

		var mailer api.Mailer
		if cfg.Mail.SendGridKey != "" {
			mailer = api.NewSendGridMailer(cfg.Mail.SendGridKey, cfg.Mail.FromName, cfg.Mail.FromAddress, cfg.Mail.AppURL)
		}
		handler := api.NewHandler(api.Deps{
			Store:    a.store,
			Sheets:   a.sheets,
			Reports:  a.reports,
			Exporter: a.exporter,
			Mailer:   mailer,
			Logger:   logger,
		})
		auth := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
		router := api.NewRouter(handler, auth, api.RouterConfig{
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
			EnableScenarios: cfg.HTTP.EnableScenarios,
		})

		if err := a.dispatcher.Start(ctx); err != nil {
			return fmt.Errorf("start dispatcher: %w", err)
		}
		defer a.dispatcher.Stop()

		jobs := api.NewMonthlyReports(a.store, a.reports, logger).WithLocation(cfg.Jobs.Location())
		if err := jobs.Start(cfg.Jobs.MonthlyReport); err != nil {
			return err
		}
		defer jobs.Stop()

		srv := &http.Server{
			Addr:         cfg.HTTP.ListenAddr,
			Handler:      router,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		lch := make(chan error, 1)
		go func() {
			defer close(lch)
			logger.Info("starting server", "addr", cfg.HTTP.ListenAddr, "db", cfg.DB.Path, "scenarios", cfg.HTTP.EnableScenarios)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lch <- err
			}
		}()

		select {
		case err := <-lch:
			return fmt.Errorf("server failed: %w", err)
		case <-done:
		}

		logger.Info("shutting down server")
		jobs.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}
