package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger adapts logrus.FieldLogger to gorm's logger interface.
type gormLogger struct {
	logger        logrus.FieldLogger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(logger logrus.FieldLogger) *gormLogger {
	return &gormLogger{logger: logger, level: gormlogger.Warn, slowThreshold: 500 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.logger.WithFields(logrus.Fields{
		"elapsed": elapsed.String(),
		"rows":    rows,
		"sql":     sql,
	})
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		log.WithError(err).Error("SQL query failed")
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		log.Warn("Slow SQL query")
	case l.level >= gormlogger.Info:
		log.Debug("SQL query")
	}
}
