// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides per-module leveled loggers backed by zap, the way
// the rest of the tree expects to obtain a logger: log.NewModuleLogger(name).
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names, one per subsystem that wants its own verbosity knob.
const (
	Store           = "STORE"
	ChainReconciler = "CHAIN"
	ScriptScheduler = "SCRIPT"
	TxPool          = "TXPOOL"
	Common          = "COMMON"
	Consensus       = "CONSENSUS"
	RPC             = "RPC"
	Config          = "CONFIG"
	PubSub          = "PUBSUB"
)

var base *zap.SugaredLogger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	l, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than panicking on init
		l = zap.NewNop()
	}
	base = l.Sugar()
}

// Logger is the per-module logging handle used throughout the tree.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

type moduleLogger struct {
	module string
	s      *zap.SugaredLogger
}

// NewModuleLogger returns a Logger scoped to module, e.g.
// log.NewModuleLogger(log.ChainReconciler).
func NewModuleLogger(module string) Logger {
	return &moduleLogger{module: module, s: base.With("module", module)}
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.s.Infow(msg, ctx...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.s.Warnw(msg, ctx...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.s.Errorw(msg, ctx...) }
func (l *moduleLogger) Crit(msg string, ctx ...interface{})  { l.s.Fatalw(msg, ctx...) }

func (l *moduleLogger) With(ctx ...interface{}) Logger {
	return &moduleLogger{module: l.module, s: l.s.With(ctx...)}
}

// New mirrors go-ethereum-style log.New("k", v) root loggers used by
// storage/database for per-instance contextual logging.
func New(ctx ...interface{}) Logger {
	return &moduleLogger{module: "root", s: base.With(ctx...)}
}

// Info/Warn/Error at package level, used by a handful of call sites that
// predate per-module loggers (mirrors blockchain/init_derive_sha.go's
// direct log.Info calls).
func Info(msg string, ctx ...interface{})  { base.Infow(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { base.Warnw(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { base.Errorw(msg, ctx...) }
