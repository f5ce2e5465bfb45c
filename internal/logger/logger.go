package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scenesound/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	sugar  *zap.SugaredLogger
	logDir string
	mu     *sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) (*Logger, error) {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
		mu:     &sync.Mutex{},
	}

	core, err := logger.setupCores(config.LogMode)
	if err != nil {
		return nil, err
	}
	logger.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return logger, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), mu: &sync.Mutex{}}
}

// setupCores builds one console core and one file core per level.
func (l *Logger) setupCores(mode string) (zapcore.Core, error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	fileEncoder := zapcore.NewConsoleEncoder(encCfg)
	if strings.EqualFold(mode, "production") {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileEncoder = zapcore.NewJSONEncoder(encCfg)
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encCfg)

	infoOnly := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl < zapcore.WarnLevel })
	warnOnly := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl == zapcore.WarnLevel })
	errorUp := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= zapcore.ErrorLevel })
	belowError := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl < zapcore.ErrorLevel })

	infoFile, err := l.openLogFile("info.log")
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile("warning.log")
	if err != nil {
		return nil, err
	}
	errorFile, err := l.openLogFile("error.log")
	if err != nil {
		return nil, err
	}

	return zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), belowError),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), errorUp),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(infoFile), infoOnly),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(warningFile), warnOnly),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(errorFile), errorUp),
	), nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	path := filepath.Join(l.logDir, filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}

// With returns a child logger that attaches the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), logDir: l.logDir, mu: l.mu}
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

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// LogDir is the directory holding the per-level files, empty for a nop logger.
func (l *Logger) LogDir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	if err := os.Truncate(filePath, 0); err != nil {
		l.Error("Error truncating %s: %v", filePath, err)
		return err
	}

	l.Info("Log file %s has been cleared", fileName)
	return nil
}
