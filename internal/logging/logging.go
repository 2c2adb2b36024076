// Package logging wires the process-wide structured logger (logrus) and
// the rotating request-log file (lumberjack), matching the ambient
// logging stack the rest of this proxy's dependency family uses.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors the --log-level flag's accepted values.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case LevelError:
		return logrus.ErrorLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// New constructs the process-wide logger at the given level, writing
// structured JSON to stderr.
func New(level Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level.toLogrus())
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)
	return log
}

// RequestLogger is a dedicated, size-rotated sink for per-request
// diagnostic lines (raw payloads, SSE traces), kept separate from the
// operational logger so verbose tracing doesn't flood stderr.
type RequestLogger struct {
	*logrus.Logger
	writer io.WriteCloser
}

// NewRequestLogger opens (creating if absent) a rotating log file at
// path. Rotation: 50MB per file, 5 backups kept, 30 days retention,
// compressed.
func NewRequestLogger(path string) *RequestLogger {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(writer)
	log.SetLevel(logrus.DebugLevel)

	return &RequestLogger{Logger: log, writer: writer}
}

// Close flushes and closes the underlying rotation writer.
func (r *RequestLogger) Close() error {
	return r.writer.Close()
}
