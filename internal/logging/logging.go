// Copyright Contributors to the KubeTask project

// Package logging constructs the logr.Logger used by the jobexpand CLI:
// a zap logger wrapped by zapr, with no controller-runtime zap.Options or
// flag plumbing.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logr.Logger backed by zap. verbose selects a development
// configuration (console encoding, debug level); otherwise zap's
// production configuration (JSON at info level).
func New(verbose bool) logr.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	zlog, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zlog)
}
