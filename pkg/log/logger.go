package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Buffer only needs to hold "goroutine 123 [running]:".
	minStackBufSize = 32
	// Minimum expected stack trace length for valid goroutine info.
	minStackTraceLen = 12
	// Number of characters to skip: "goroutine " (10 chars).
	goroutinePrefixLen = 10

	logDirPerm  = 0750
	logFilePerm = 0640

	// Visible prefix length kept by MaskSecret.
	secretVisibleLen = 8
	redacted         = "***"
)

// Output formats accepted by Configure.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Output targets accepted by Configure. Anything else is treated as a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

var (
	goroutinePool sync.Pool

	// current is read on every log call and swapped by Configure.
	current atomic.Pointer[zerolog.Logger]

	// configureMu serialises writers of current and logFile.
	configureMu sync.Mutex
	logFile     *os.File
)

func init() {
	goroutinePool.New = func() interface{} {
		return make([]byte, minStackBufSize)
	}
}

func getGoroutineIDOptimized() string {
	bufInterface := goroutinePool.Get()
	buf, ok := bufInterface.([]byte)
	if !ok {
		return "unknown"
	}
	defer goroutinePool.Put(buf) //nolint:staticcheck // buf is a slice, this is the correct usage

	stackLen := runtime.Stack(buf, false)
	if stackLen < minStackTraceLen {
		return "unknown"
	}

	idx := goroutinePrefixLen
	if idx >= stackLen {
		return "unknown"
	}

	start := idx
	for idx < stackLen && buf[idx] >= '0' && buf[idx] <= '9' {
		idx++
	}

	if idx > start {
		return string(buf[start:idx])
	}
	return "unknown"
}

func init() {
	setLogger(newLogger(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}, zerolog.InfoLevel))
}

// setLogger must be called with configureMu held, except from init.
func setLogger(l zerolog.Logger) {
	current.Store(&l)
	log.Logger = l
}

// Current returns the active logger.
func Current() *zerolog.Logger {
	return current.Load()
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
			e.Str("goid", getGoroutineIDOptimized())
		}))
}

// Configure rebuilds the global logger from the logging screen settings.
// An empty level means info, an empty format means console and an empty
// output means stderr.
func Configure(level, format, output string) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var (
		sink io.Writer
		file *os.File
	)
	switch output {
	case "", OutputStderr:
		sink = os.Stderr
	case OutputStdout:
		sink = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(output), logDirPerm); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = f
		file = f
	}

	switch format {
	case "", FormatConsole:
		sink = zerolog.ConsoleWriter{Out: sink, TimeFormat: "15:04:05", NoColor: file != nil}
	case FormatJSON:
	default:
		if file != nil {
			_ = file.Close()
		}
		return fmt.Errorf("invalid log format %q", format)
	}

	configureMu.Lock()
	previous := logFile
	logFile = file
	setLogger(newLogger(sink, lvl))
	configureMu.Unlock()

	// Events started before the swap may still write to the previous file;
	// those writes fail quietly once it is closed.
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

func closeLogFile() {
	configureMu.Lock()
	defer configureMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// MaskSecret keeps the first eight characters of a secret and hides the rest.
// Short secrets are returned as is; this is the display form of an API key.
func MaskSecret(secret string) string {
	if len(secret) <= secretVisibleLen {
		return secret
	}
	return secret[:secretVisibleLen] + "..."
}

// RedactSecret is MaskSecret for log fields: short secrets are hidden entirely.
func RedactSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= secretVisibleLen:
		return redacted
	default:
		return MaskSecret(secret)
	}
}

// Info logs an info message with goroutine ID.
func Info() *zerolog.Event {
	return current.Load().Info()
}

// Error logs an error message with goroutine ID.
func Error() *zerolog.Event {
	return current.Load().Error()
}

// Warn logs a warning message with goroutine ID.
func Warn() *zerolog.Event {
	return current.Load().Warn()
}

// Debug logs a debug message with goroutine ID.
func Debug() *zerolog.Event {
	return current.Load().Debug()
}

// Fatal logs a fatal message with goroutine ID and exits.
func Fatal() *zerolog.Event {
	return current.Load().Fatal()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	configureMu.Lock()
	defer configureMu.Unlock()
	setLogger(current.Load().Level(zerolog.DebugLevel))
}
