package main

import (
	"go.uber.org/zap"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
)

func newZap(appEnv string) *zap.SugaredLogger {
	var z *zap.Logger
	if appEnv == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar()
}

// zapLogger adapts a sugared zap logger to tenantauth.Logger.
type zapLogger struct {
	log *zap.SugaredLogger
}

var _ tenantauth.Logger = zapLogger{}

func (l zapLogger) Debug(format string, args ...any) { l.log.Debugf(format, args...) }
func (l zapLogger) Info(format string, args ...any)  { l.log.Infof(format, args...) }
func (l zapLogger) Warn(format string, args ...any)  { l.log.Warnf(format, args...) }
func (l zapLogger) Error(format string, args ...any) { l.log.Errorf(format, args...) }

// activityLogger publishes auth store activity as structured log entries.
func activityLogger(log *zap.SugaredLogger) tenantauth.ActivitySink {
	return activitymap.Sink(func(n activitymap.Normalized) error {
		log.Infow("auth activity",
			"verb", n.Verb,
			"actor", n.ActorID,
			"object_type", n.ObjectType,
			"object", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}
