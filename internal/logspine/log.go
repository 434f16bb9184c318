// Package logspine is pacwrap's logging and transaction-log backbone.
//
// A single global zerolog.Logger configured once at startup, with
// component-scoped child loggers handed out to every core package. In
// addition it owns the append-only transaction log described in §4.K / §6.
package logspine

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger zerolog.Logger

// Level is a log verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call once at process start.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	Init(Config{Level: InfoLevel})
}

// WithComponent returns a child logger tagged with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithContainerID returns a child logger tagged with a container id.
func WithContainerID(id string) zerolog.Logger {
	return Logger.With().Str("container_id", id).Logger()
}

// WithOperationID returns a child logger tagged with an operation id.
func WithOperationID(id string) zerolog.Logger {
	return Logger.With().Str("operation_id", id).Logger()
}

// LogEntry is one line of the transaction log (§4.K, §6).
type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	OperationID string    `json:"operation_id"`
	ContainerID string    `json:"container_id"`
	Event       string    `json:"event"`
	Detail      string    `json:"detail,omitempty"`
}

// TransactionLog is the append-only newline-delimited transaction log file.
// All writes go through a single mutex; the file is opened O_APPEND so
// concurrent writers from independent sibling containers never interleave
// partial lines.
type TransactionLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// OpenTransactionLog opens (creating if absent) the transaction log at path.
func OpenTransactionLog(path string) (*TransactionLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &TransactionLog{file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry, flushing immediately so a crash doesn't lose it.
func (t *TransactionLog) Append(e LogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(data); err != nil {
		return err
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}
	return t.w.Flush()
}

// Close closes the underlying file.
func (t *TransactionLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// ReadTransactionLog reads back every entry in the log, in order. Used by
// operator tooling to resume a Failed(state) per §7, and to inspect past
// runs.
func ReadTransactionLog(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LogEntry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e LogEntry
		if err := dec.Decode(&e); err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
