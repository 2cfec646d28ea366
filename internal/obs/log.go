package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerOnce sync.Once
	logger     atomic.Pointer[zap.Logger]
)

// NewLogger builds a JSON logger writing to w at the given level.
func NewLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil {
		return nil, fmt.Errorf("obs: log level %q: %w", level, err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger.Load() != nil {
			return
		}
		l, err := NewLogger("info", os.Stdout)
		if err != nil {
			l = zap.NewNop()
		}
		logger.CompareAndSwap(nil, l)
	})
	return logger.Load()
}

// SetLogger replaces the shared logger and returns a func restoring the
// previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	prev := Logger()
	logger.Store(l)
	return func() { logger.Store(prev) }
}
