package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger's printf-style logging into zap.
// Badger is chatty at info level, so info messages are logged at debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.logger.Sugar().Errorw(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.logger.Sugar().Warnw(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.logger.Sugar().Debugw(fmt.Sprintf(format, args...), "component", "badger")
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.logger.Sugar().Debugw(fmt.Sprintf(format, args...), "component", "badger")
}
