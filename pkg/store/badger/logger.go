package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// dbLog routes badger's internal logging into the store's zap logger.
// Badger terminates its format strings with a newline and reports routine
// compaction chatter at info level, so messages are trimmed and info is
// demoted to debug to keep the store's own log lines readable.
type dbLog struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*dbLog)(nil)

func newDBLog(logger *zap.Logger) *dbLog {
	return &dbLog{sugar: logger.Sugar().Named("badger")}
}

func (l *dbLog) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(strings.TrimSuffix(format, "\n"), args...)
}

func (l *dbLog) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(strings.TrimSuffix(format, "\n"), args...)
}

func (l *dbLog) Infof(format string, args ...interface{}) {
	l.sugar.Debugf(strings.TrimSuffix(format, "\n"), args...)
}

func (l *dbLog) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(strings.TrimSuffix(format, "\n"), args...)
}
