// Package logging builds the process logger from the configuration.
package logging

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/workhours/overtime/config"
)

// New returns the root logger. When cfg.Log.Path is set logs are appended
// to that file, which the caller must close.
func New(cfg *config.Config) (*log.Logger, *os.File, error) {
	if cfg == nil {
		return nil, nil, config.ErrNilConfig
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.Log.TimeFormat,
	})

	if cfg.Log.Level != "" {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		logger.SetLevel(level)
	}
	if config.IsDebug() {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
	}

	switch cfg.Log.Format {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}

	var f *os.File
	if cfg.Log.Path != "" {
		var err error
		f, err = os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		logger.SetOutput(f)
	}
	return logger, f, nil
}
