package transaction

import (
	"sync"

	"go.uber.org/zap"
)

// onceLogger logs each warning key only the first time it is seen.
type onceLogger struct {
	logger *zap.Logger
	seen   sync.Map // key -> *sync.Once
}

func newOnceLogger(logger *zap.Logger) *onceLogger {
	return &onceLogger{logger: logger}
}

func (w *onceLogger) Warn(key, msg string, fields ...zap.Field) {
	once, _ := w.seen.LoadOrStore(key, &sync.Once{})
	once.(*sync.Once).Do(func() {
		w.logger.Warn(msg, fields...)
	})
}
