// Package logger owns the process-wide slog loggers: the application log and
// the audit log that records every ledger submission and job transition.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Redacted replaces the value of any attribute whose key names key material.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against attribute keys at any
// group depth.
var sensitiveKeys = map[string]struct{}{
	"secret":        {},
	"secret_key":    {},
	"secretkey":     {},
	"private_key":   {},
	"privatekey":    {},
	"seed":          {},
	"token":         {},
	"access_token":  {},
	"authorization": {},
	"password":      {},
}

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls audit log output. Every ledger submission is written
// to the audit log, so it is rotated independently of the main log.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (c AuditConfig) withDefaults() AuditConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 7
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
	return c
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous loggers and closes their files.
func Init(cfg Config) error {
	app, audit, opened, err := build(cfg)
	if err != nil {
		closeAll(opened)
		return err
	}

	mu.Lock()
	previous := closers
	defaultLogger, auditLogger, closers = app, audit, opened
	mu.Unlock()

	return closeAll(previous)
}

func build(cfg Config) (*slog.Logger, *slog.Logger, []io.Closer, error) {
	var opened []io.Closer
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   true,
		ReplaceAttr: redact,
	}

	writers := make([]io.Writer, 0, len(cfg.OutputPaths))
	for _, out := range cfg.OutputPaths {
		w, closer, err := openWriter(out)
		if err != nil {
			return nil, nil, opened, err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		writers = append(writers, w)
	}
	app := slog.New(newHandler(cfg.Format, combine(writers), opts))

	if !cfg.Audit.Enabled {
		return app, app, opened, nil
	}
	audit := cfg.Audit.withDefaults()
	if audit.Path == "" {
		return nil, nil, opened, errors.New("audit log path cannot be empty when enabled")
	}
	rotating, err := rotatingFile(audit.Path, audit)
	if err != nil {
		return nil, nil, opened, err
	}
	opened = append(opened, rotating)
	auditHandler := slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: redact})
	return app, slog.New(auditHandler), opened, nil
}

func combine(writers []io.Writer) io.Writer {
	switch len(writers) {
	case 0:
		return os.Stdout
	case 1:
		return writers[0]
	default:
		return io.MultiWriter(writers...)
	}
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// openWriter resolves an output path. Files are rotated with the audit
// defaults.
func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	rotating, err := rotatingFile(path, AuditConfig{}.withDefaults())
	if err != nil {
		return nil, nil, err
	}
	return rotating, rotating, nil
}

func rotatingFile(path string, cfg AuditConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func redact(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, Redacted)
	}
	return attr
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the application logger, falling back to JSON on stdout when Init
// has not run.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = slog.New(newHandler("json", os.Stdout, &slog.HandlerOptions{ReplaceAttr: redact}))
	}
	return defaultLogger
}

// Audit returns the audit logger, or the application logger when auditing is
// disabled.
func Audit() *slog.Logger {
	mu.RLock()
	a := auditLogger
	mu.RUnlock()
	if a == nil {
		return L()
	}
	return a
}

// Sync closes every file opened by Init.
func Sync() error {
	mu.Lock()
	opened := closers
	closers = nil
	mu.Unlock()
	return closeAll(opened)
}

func closeAll(list []io.Closer) error {
	var err error
	for _, c := range list {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
