package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false // Default to Info on parse error
	}
}

// Options selects where log output goes.
type Options struct {
	Level      LogLevel
	File       string // Rotated log file, written in addition to stderr.
	MaxSizeMB  int    // Rotate after this size (default 10).
	MaxBackups int    // Rotated files to keep (default 3).
	JSON       bool   // Plain JSON on stderr instead of the console format.
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically.
var currentLevel atomic.Uint32

var (
	logger atomic.Pointer[zerolog.Logger]

	fileMu sync.Mutex
	file   *lumberjack.Logger
)

func init() {
	// Default level at startup. Can be overridden by config.
	SetLevel(LevelInfo)
	SetOutput(consoleWriter(os.Stderr))
}

// consoleWriter formats timestamps at the second precision zerolog records.
func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// Configure applies opts to the global logger. It may be called again to
// reconfigure; a previously opened log file is closed.
func Configure(opts Options) error {
	SetLevel(opts.Level)

	var console io.Writer = consoleWriter(os.Stderr)
	if opts.JSON {
		console = os.Stderr
	}

	fileMu.Lock()
	defer fileMu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}

	if opts.File == "" {
		SetOutput(console)
		return nil
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	file = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	if _, err := file.Write(nil); err != nil {
		file = nil
		SetOutput(console)
		return fmt.Errorf("failed to open log file %s: %w", opts.File, err)
	}

	SetOutput(zerolog.MultiLevelWriter(console, file))
	return nil
}

// Close releases the log file opened by Configure, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// SetOutput replaces the writer behind the global logger.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	logger.Store(&l)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// shouldLog checks if a message at the given level should be logged based on the current global level.
func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func event(level LogLevel) *zerolog.Event {
	l := logger.Load()
	switch level {
	case LevelDebug:
		return l.Debug()
	case LevelInfo:
		return l.Info()
	case LevelWarn:
		return l.Warn()
	case LevelError:
		return l.Error()
	default:
		return l.WithLevel(zerolog.FatalLevel)
	}
}

func write(level LogLevel, msg string) {
	event(level).Msg(msg)
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...interface{}) {
	if shouldLog(LevelDebug) {
		write(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...interface{}) {
	if shouldLog(LevelInfo) {
		write(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...interface{}) {
	if shouldLog(LevelWarn) {
		write(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...interface{}) {
	if shouldLog(LevelError) {
		write(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...interface{}) {
	write(LevelFatal, fmt.Sprintf(format, v...))
	Close()
	os.Exit(1)
}

// --- Functions without formatting (convenience) ---

// Debug logs a debug message if the level is appropriate.
func Debug(v ...interface{}) {
	if shouldLog(LevelDebug) {
		write(LevelDebug, fmt.Sprint(v...))
	}
}

// Info logs an info message if the level is appropriate.
func Info(v ...interface{}) {
	if shouldLog(LevelInfo) {
		write(LevelInfo, fmt.Sprint(v...))
	}
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...interface{}) {
	if shouldLog(LevelWarn) {
		write(LevelWarn, fmt.Sprint(v...))
	}
}

// Error logs an error message if the level is appropriate.
func Error(v ...interface{}) {
	if shouldLog(LevelError) {
		write(LevelError, fmt.Sprint(v...))
	}
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...interface{}) {
	write(LevelFatal, fmt.Sprint(v...))
	Close()
	os.Exit(1)
}
