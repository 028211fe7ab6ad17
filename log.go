package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

const logFileName = "fellowship.log"

// setupLog sends logs to a file when debugging. Otherwise only warnings
// reach stderr until a command decides otherwise.
func setupLog() (func() error, error) {
	if !viper.GetBool("debug") {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.WarnLevel)
		return func() error { return nil }, nil
	}

	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	log.SetDefault(log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           log.DebugLevel,
	}))
	log.Debug("Logging to file", "path", f.Name())
	return f.Close, nil
}

// quietLog hands the terminal to the mini-player. Debug logs keep going to
// their file.
func quietLog() {
	if !viper.GetBool("debug") {
		log.SetOutput(io.Discard)
	}
}

// headlessLog reports progress on stderr.
func headlessLog() {
	if !viper.GetBool("debug") {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	}
}
