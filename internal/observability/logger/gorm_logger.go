package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig controls SQL logging behaviour.
type GormLoggerConfig struct {
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
	LogSQL                    bool
	Level                     gormlogger.LogLevel
}

// DefaultGormLoggerConfig returns sane defaults for production use.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		LogSQL:                    false,
		Level:                     gormlogger.Warn,
	}
}

// GormLogger adapts zap to gorm's logger interface.
type GormLogger struct {
	cfg GormLoggerConfig
}

// NewGormLogger constructs a GormLogger.
func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = 200 * time.Millisecond
	}
	return &GormLogger{cfg: cfg}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.cfg.Level = level
	return &clone
}

// Info implements gormlogger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.cfg.Level < gormlogger.Info {
		return
	}
	FromContext(ctx).Sugar().Infof(msg, args...)
}

// Warn implements gormlogger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.cfg.Level < gormlogger.Warn {
		return
	}
	FromContext(ctx).Sugar().Warnf(msg, args...)
}

// Error implements gormlogger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.cfg.Level < gormlogger.Error {
		return
	}
	FromContext(ctx).Sugar().Errorf(msg, args...)
}

// Trace implements gormlogger.Interface.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	log := FromContext(ctx)
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}
	if l.cfg.LogSQL {
		fields = append(fields, zap.String("sql", sql))
	}

	switch {
	case err != nil && l.cfg.Level >= gormlogger.Error:
		if errors.Is(err, gorm.ErrRecordNotFound) && l.cfg.IgnoreRecordNotFoundError {
			return
		}
		log.Error("gorm query failed", append(fields, zap.Error(err))...)
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		log.Warn("gorm slow query", fields...)
	case l.cfg.Level >= gormlogger.Info:
		log.Debug("gorm query", fields...)
	}
}
