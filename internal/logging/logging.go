// Package logging builds the process-wide structured logger and the
// domain-scoped loggers the subsystems tag their records with: a run
// logger carries its thread and project ids on every record, a step
// logger narrows a run further, and an approval logger ties a gate back
// to the workflow position that opened it. Scoping goes through these
// helpers rather than ad hoc .With calls so the attribute names stay
// uniform across the whole log stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meow-stack/meowctl/internal/config"
)

// NewFromConfig builds the root logger per cfg: stderr always, plus an
// append-only log file when one is configured. The returned closer is
// never nil, so callers can defer Close unconditionally.
func NewFromConfig(cfg *config.Config, baseDir string) (*slog.Logger, io.Closer, error) {
	w := io.Writer(os.Stderr)
	closer := io.Closer(nopCloser{})

	if cfg.Logging.File != "" {
		logPath := cfg.LogFile(baseDir)
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, err
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stderr, file)
		closer = file
	}

	return slog.New(handlerFor(cfg.Logging.Format, w, level(cfg.Logging.Level))), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewForTest returns a logger that discards everything below Error.
func NewForTest() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// level maps a config log level onto slog's, defaulting to info for
// anything unrecognized.
func level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// handlerFor picks the slog handler for a configured format; JSON is
// the default since the log file is meant for machine consumption.
func handlerFor(format config.LogFormat, w io.Writer, lvl slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatText {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ForRun returns a logger scoped to one workflow thread: every record
// carries the thread id, and the project id when the run has one, so a
// run's whole lifecycle greps out of a shared log file by thread.
func ForRun(base *slog.Logger, threadID, projectID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if projectID == "" {
		return base.With("thread", threadID)
	}
	return base.With("thread", threadID, "project", projectID)
}

// ForStep narrows a run logger to one step of that run.
func ForStep(run *slog.Logger, stepID string) *slog.Logger {
	if run == nil {
		run = slog.Default()
	}
	return run.With("step", stepID)
}

// ForApproval returns a logger scoped to one human-approval gate,
// carrying the workflow position (thread, step) that opened it so gate
// decisions correlate with the suspended run waiting on them.
func ForApproval(base *slog.Logger, approvalID, threadID, stepID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("approval", approvalID, "thread", threadID, "step", stepID)
}
