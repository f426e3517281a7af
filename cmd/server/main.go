/*
main.go - Application entry point

PURPOSE:
  The overtime command. Subcommands share one configuration (file and
  OVERTIME_* environment) and one set of collaborators built by newApp.

COMMANDS:
  serve    Start the HTTP API, the task dispatcher and the monthly cron
  report   Render one month's report inline, or enqueue it with --queue
  token    Mint a bearer token for a uid (development and scripts)

CONFIGURATION:
  --config/-c  YAML file read before the environment. See config/config.go.

EXAMPLES:
  # Run the API with demo scenarios enabled
  OVERTIME_HTTP_ENABLE_SCENARIOS=true overtime serve

  # Render March 2024 for acme right now
  overtime report --org acme --month 2024-03

  # Token for curl
  overtime token --uid alice --email alice@acme.test

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/workhours/overtime/config"
	"github.com/workhours/overtime/logging"
	"github.com/workhours/overtime/report"
	"github.com/workhours/overtime/spreadsheet"
	"github.com/workhours/overtime/store/sqlite"
	"github.com/workhours/overtime/taskqueue"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:          "overtime",
		Short:        "Overtime tracker with monthly Google Sheets reports",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(serveCmd, reportCmd, tokenCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config then the environment.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := cfg.Parse(configPath); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SHARED WIRING
// =============================================================================

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	logFile *os.File

	store      *sqlite.Store
	sheets     spreadsheet.Service
	runner     *report.Runner
	reports    *report.Scheduler
	exporter   *report.Exporter
	dispatcher *taskqueue.Dispatcher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logFile, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, logFile: logFile}

	a.store, err = sqlite.New(cfg.DB.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Sheets.Configured() {
		svc, err := spreadsheet.NewGoogleService(ctx, spreadsheet.Credentials{
			Email:      cfg.Sheets.Email,
			PrivateKey: cfg.Sheets.PrivateKey,
			File:       cfg.Sheets.CredentialsFile,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("google sheets: %w", err)
		}
		a.sheets = svc
	} else {
		logger.Warn("google sheets credentials not configured, spreadsheet access disabled")
		a.sheets = spreadsheet.Disabled{}
	}

	opts := queueOptions(cfg.Queue)
	queue := taskqueue.New(a.store, opts, logger)
	a.dispatcher = taskqueue.NewDispatcher(a.store, taskqueue.DispatcherConfig{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		PollInterval:  cfg.Queue.PollInterval,
	}, logger)

	a.runner = report.NewRunner(a.store, a.sheets, logger)
	a.reports = report.NewScheduler(a.runner, a.store, queue, opts, logger)
	a.reports.Register(a.dispatcher)
	a.exporter = report.NewExporter(a.store, a.sheets, logger)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close database", "err", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close() // nolint: errcheck
	}
}

func queueOptions(q config.QueueConfig) taskqueue.Options {
	return taskqueue.Options{
		Delay:       q.Delay,
		Deadline:    q.Deadline,
		MaxAttempts: q.MaxAttempts,
		MinBackoff:  q.MinBackoff,
		MaxBackoff:  q.MaxBackoff,
	}
}
