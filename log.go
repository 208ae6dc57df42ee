package odbc

import (
	"context"
	"fmt"

	"github.com/go-pkgz/lgr"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

type ContextLogger interface {
	Log(ctx context.Context, category odbcdsn.Log, msg string)
}

// optionalCtxLogger implements the ContextLogger interface with
// a default "do nothing" behavior that can be overridden by an
// optional ContextLogger supplied by the user.
type optionalCtxLogger struct {
	ctxLogger ContextLogger
}

// Log does nothing unless the user has specified an optional
// ContextLogger to override the "do nothing" default behavior.
func (o optionalCtxLogger) Log(ctx context.Context, category odbcdsn.Log, msg string) {
	if nil != o.ctxLogger {
		o.ctxLogger.Log(ctx, category, msg)
	}
}

type loggerAdapter struct {
	logger Logger
}

func (la loggerAdapter) Log(_ context.Context, _ odbcdsn.Log, msg string) {
	la.logger.Println(msg)
}

// LgrLogger sends log output to a go-pkgz/lgr logger, using the category to
// pick the level prefix.
type LgrLogger struct {
	L lgr.L
}

func (l LgrLogger) Log(_ context.Context, category odbcdsn.Log, msg string) {
	out := l.L
	if out == nil {
		out = lgr.Default()
	}
	out.Logf("%s %s", levelPrefix(category), msg)
}

func levelPrefix(category odbcdsn.Log) string {
	switch category {
	case odbcdsn.LogErrors:
		return "[ERROR]"
	case odbcdsn.LogMessages:
		return "[INFO]"
	case odbcdsn.LogDebug:
		return "[DEBUG]"
	default:
		return "[TRACE]"
	}
}

// Printf and Println let an LgrLogger also serve as a Logger.
func (l LgrLogger) Printf(format string, v ...interface{}) {
	l.Log(context.Background(), odbcdsn.LogDebug, fmt.Sprintf(format, v...))
}

func (l LgrLogger) Println(v ...interface{}) {
	l.Log(context.Background(), odbcdsn.LogDebug, fmt.Sprint(v...))
}

// connection scoped logger gated by the configured flags
type flagLogger struct {
	out   ContextLogger
	flags odbcdsn.Log
}

func (f flagLogger) enabled(category odbcdsn.Log) bool {
	return f.flags&category != 0
}

func (f flagLogger) logf(ctx context.Context, category odbcdsn.Log, format string, v ...interface{}) {
	if f.flags&category == 0 {
		return
	}
	f.out.Log(ctx, category, fmt.Sprintf(format, v...))
}
