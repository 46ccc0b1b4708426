package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// maxLoggedSQL truncates long statements such as multi-row inserts
const maxLoggedSQL = 2000

// SlowQueryRecorder counts statements slower than the threshold
type SlowQueryRecorder interface {
	SlowQuery(operation string)
}

// GormLogger routes GORM statements through zap, tagged with the request,
// organization and trace of the calling context
type GormLogger struct {
	zl       *zap.Logger
	level    gormlogger.LogLevel
	slow     time.Duration
	recorder SlowQueryRecorder
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is logged as slow; zero disables it
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = threshold }
}

// WithSlowQueryRecorder reports slow statements to r
func WithSlowQueryRecorder(r SlowQueryRecorder) GormLoggerOption {
	return func(l *GormLogger) { l.recorder = r }
}

// NewGormLogger creates a GORM logger backed by zap. Lookups that find no
// row are expected in this codebase and are not logged as errors.
func NewGormLogger(zl *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{zl: zl.Named("gorm"), level: level, slow: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.zl.With(contextFields(ctx)...).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.zl.With(contextFields(ctx)...).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.zl.With(contextFields(ctx)...).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	isSlow := l.slow > 0 && elapsed > l.slow

	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	if !failed && !isSlow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	if isSlow && l.recorder != nil {
		l.recorder.SlowQuery(operation(sql))
	}
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "...(truncated)"
	}
	fields := append([]zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}, contextFields(ctx)...)

	switch {
	case failed && l.level >= gormlogger.Error:
		l.zl.Error("SQL Error", append(fields, zap.Error(err))...)
	case isSlow && l.level >= gormlogger.Warn:
		l.zl.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		l.zl.Debug("SQL Query", fields...)
	}
}

// contextFields returns the correlation ids carried by ctx as zap fields
func contextFields(ctx context.Context) []zap.Field {
	var out []zap.Field
	if id := GetRequestID(ctx); id != "" {
		out = append(out, zap.String("request_id", id))
	}
	if id := GetOrgID(ctx); id != "" {
		out = append(out, zap.String("org_id", id))
	}
	if id := GetTraceID(ctx); id != "" {
		out = append(out, zap.String("trace_id", id))
	}
	return out
}

// operation returns the lower-cased leading keyword of a statement
func operation(sql string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	switch op := strings.ToLower(word); op {
	case "select", "insert", "update", "delete":
		return op
	default:
		return "other"
	}
}

// MapGormLogLevel maps an application log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
