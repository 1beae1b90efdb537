package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"watchtower/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level
// files and stdout/stderr, backed by zap.
type Logger struct {
	sugar  *zap.SugaredLogger
	logDir string
	files  []*os.File
	mu     sync.Mutex
}

// New creates a Logger and ensures the log directory exists.
func New(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	l := &Logger{logDir: cfg.LogDirectory}
	core, err := l.setupCores(level)
	if err != nil {
		l.closeFiles()
		return nil, err
	}

	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return l, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// setupCores builds a console core plus one file core per level.
func (l *Logger) setupCores(level zapcore.Level) (zapcore.Core, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	exactly := func(target zapcore.Level) zap.LevelEnablerFunc {
		return func(lvl zapcore.Level) bool { return lvl == target && lvl >= level }
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= level && lvl < zapcore.ErrorLevel
		})),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= zapcore.ErrorLevel
		})),
	}

	for _, target := range []struct {
		name  string
		level zap.LevelEnablerFunc
	}{
		{InfoFile, exactly(zapcore.InfoLevel)},
		{WarningFile, exactly(zapcore.WarnLevel)},
		{ErrorFile, func(lvl zapcore.Level) bool { return lvl >= zapcore.ErrorLevel }},
	} {
		file, err := l.openLogFile(filepath.Join(l.logDir, target.name))
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), target.level))
	}

	return zapcore.NewTee(cores...), nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

func (l *Logger) closeFiles() {
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}

// With returns a child logger that adds key/value context to every entry.
// The child shares files with its parent.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(args...), logDir: l.logDir}
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Dir returns the directory the log files live in.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(filePath, 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	l.sugar.Infof("File %s has been cleared.", fileName)
	return nil
}

// Close flushes buffered entries and closes the log files.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFiles()
	return nil
}
