// Package logger owns the process-wide zap logger of the osmrel commands.
// Components receive a *zap.Logger; only cmd reaches for the global one.
package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Rotation of the JSON log file.
const (
	fileMaxSizeMB  = 50
	fileMaxBackups = 5
	fileMaxAgeDays = 30
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init sets up console logging. Only the first Init or InitWithFile call
// has an effect.
func Init(debug bool) {
	InitWithFile(debug, "")
}

// InitWithFile sets up console logging plus, when logFile is not empty, a
// rotated JSON log of the same entries.
func InitWithFile(debug bool, logFile string) {
	once.Do(func() {
		log = build(debug, logFile)
	})
}

func build(debug bool, logFile string) *zap.Logger {
	level := zapcore.InfoLevel
	console := zap.NewProductionEncoderConfig()
	if debug {
		level = zapcore.DebugLevel
		console = zap.NewDevelopmentEncoderConfig()
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.AddSync(os.Stdout), level),
	}
	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
			MaxAge:     fileMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotated),
			level,
		))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the global logger, setting up console logging on first use.
func Get() *zap.Logger {
	Init(false)
	return log
}

// For returns the global logger with a component field, the way each
// command labels its entries.
func For(component string) *zap.Logger {
	return Get().With(zap.String("component", component))
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
