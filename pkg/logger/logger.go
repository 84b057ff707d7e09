package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.RWMutex
	base        = zap.NewNop()
	serviceName = "orbtrader"
)

// Init installs the process logger. verbose switches to the development
// config (debug level, console encoding).
func Init(verbose bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		l, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	Set(l)
	return nil
}

// Set replaces the process logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

func SetServiceName(newName string) string {
	mu.Lock()
	defer mu.Unlock()
	oldName := serviceName
	serviceName = newName
	return oldName
}

// L returns the underlying zap logger tagged with the service name.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With(zap.String("service", serviceName))
}

func Sync() {
	_ = L().Sync()
}

func Debug(format string, args ...interface{}) {
	L().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	L().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	L().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	L().Error(fmt.Sprintf(format, args...))
}
