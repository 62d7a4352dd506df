package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// DefaultMaxLogFiles is the default maximum number of log files to keep.
const DefaultMaxLogFiles = 10

// DefaultMaxLogFileSize is the default maximum log file size in MB.
const DefaultMaxLogFileSize = 20

// FileLoggerConfig carries the file-rotation options for a subsystem
// logger.
type FileLoggerConfig struct {
	MaxLogFiles    int `long:"max-files" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int `long:"max-file-size" description:"Maximum logfile size in MB"`
}

// DefaultFileLoggerConfig returns the default file logger config.
func DefaultFileLoggerConfig() *FileLoggerConfig {
	return &FileLoggerConfig{
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
	}
}

// RotatingLogWriter is a wrapper around the LogWriter that supports log file
// rotation.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator

	backend    *btclog.Backend
	subLoggers SubLoggers
}

// NewRotatingLogWriter creates a new file rotating log writer.
//
// NOTE: InitLogRotator must be called to set up log rotation after creating
// the writer.
func NewRotatingLogWriter() *RotatingLogWriter {
	w := &RotatingLogWriter{
		subLoggers: make(SubLoggers),
	}
	w.backend = btclog.NewBackend(w)
	return w
}

// GenSubLogger creates a new subsystem logger backed by this writer's
// btclog.Backend and registers it so it participates in SetLogLevel(s).
func (r *RotatingLogWriter) GenSubLogger(subsystem string) btclog.Logger {
	logger := r.backend.Logger(subsystem)
	r.subLoggers[subsystem] = logger
	return logger
}

// RegisterSubLogger records an externally-constructed logger under
// subsystem, so ParseAndSetDebugLevels can address it by name.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger btclog.Logger) {
	r.subLoggers[subsystem] = logger
}

// SubLoggers implements build.LeveledSubLogger.
func (r *RotatingLogWriter) SubLoggers() SubLoggers { return r.subLoggers }

// SupportedSubsystems implements build.LeveledSubLogger.
func (r *RotatingLogWriter) SupportedSubsystems() []string {
	names := make([]string, 0, len(r.subLoggers))
	for name := range r.subLoggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetLogLevel implements build.LeveledSubLogger. Unknown subsystems are
// ignored.
func (r *RotatingLogWriter) SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := r.subLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels implements build.LeveledSubLogger.
func (r *RotatingLogWriter) SetLogLevels(logLevel string) {
	for subsystemID := range r.subLoggers {
		r.SetLogLevel(subsystemID, logLevel)
	}
}

// InitLogRotator initializes the log file rotator to write logs to logFile
// and create roll files in the same directory. It should be called as early
// as possible on startup and must be closed on shutdown by calling Close.
func (r *RotatingLogWriter) InitLogRotator(cfg *FileLoggerConfig,
	logFile string) error {

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	var err error
	r.rotator, err = rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	r.rotator.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	go func() {
		if err := r.rotator.Run(pr); err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()

	r.pipe = pw

	return nil
}

// Write writes the byte slice to the log rotator, if present.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.rotator != nil {
		return r.rotator.Write(b)
	}

	return len(b), nil
}

// Close closes the underlying log rotator if it has already been created.
func (r *RotatingLogWriter) Close() error {
	if r.rotator != nil {
		return r.rotator.Close()
	}

	return nil
}
