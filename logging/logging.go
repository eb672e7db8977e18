// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level, format and optional rotating file output.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // text or json

	// File enables rotation through lumberjack in addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Configure applies cfg to the standard logrus logger. The returned closer
// releases the log file, if any.
func Configure(cfg Config) (io.Closer, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var formatter logrus.Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // MB
			MaxBackups: cfg.MaxBackups,
			Compress:   false,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = rotator
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(out)

	logrus.WithFields(logrus.Fields{
		"function": "Configure",
		"level":    level.String(),
		"file":     cfg.File,
	}).Debug("Logging configured")
	return closer, nil
}
