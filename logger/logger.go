package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// No-op until Initialize so packages can log before the CLI has parsed flags
	Logger = zap.NewNop().Sugar()
}

// Options configure Initialize.
type Options struct {
	JSON      bool
	Verbosity int    // -v count, see VerbosityToLevel
	Theme     string // console palette: everforest or gruvbox
}

// Initialize sets up the global logger
func Initialize(opts Options) error {
	JSONOutput = opts.JSON
	if theme := os.Getenv("SCHOLAR_LOG_THEME"); theme != "" {
		opts.Theme = theme
	}
	SetTheme(opts.Theme)

	zapLogger, err := build(opts, zapcore.AddSync(os.Stderr))
	if err != nil {
		return err
	}
	Logger = zapLogger.Sugar()
	return nil
}

func build(opts Options, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := VerbosityToLevel(opts.Verbosity)
	if opts.JSON {
		// JSON structured output for log shippers
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		return config.Build()
	}
	return zap.New(zapcore.NewCore(newMinimalEncoder(), out, level)), nil
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, keysAndValues...)
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, keysAndValues...)
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	Logger.Errorw(msg, keysAndValues...)
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	Logger.Debugw(msg, keysAndValues...)
}
