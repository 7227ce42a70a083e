package hooks

import (
	"go.uber.org/zap"
)

// ZapLogger adapts a zap.SugaredLogger to core.Logger.  Fields are
// alternating key/value pairs, as with slog.
type ZapLogger struct {
	log *zap.SugaredLogger
}

// NewZapLogger wraps l.
func NewZapLogger(l *zap.SugaredLogger) *ZapLogger { return &ZapLogger{log: l} }

// NewZapProduction builds a JSON production logger at the given level
// ("debug", "info", "warn", "error").
func NewZapProduction(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l.Sugar()), nil
}

func (z *ZapLogger) Debug(msg string, fields ...interface{}) { z.log.Debugw(msg, fields...) }
func (z *ZapLogger) Info(msg string, fields ...interface{})  { z.log.Infow(msg, fields...) }
func (z *ZapLogger) Warn(msg string, fields ...interface{})  { z.log.Warnw(msg, fields...) }
func (z *ZapLogger) Error(msg string, fields ...interface{}) { z.log.Errorw(msg, fields...) }

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error { return z.log.Sync() }
