// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the structured, key-value logging surface the rest
// of this module calls: log.Info(msg, "key", value, ...). It mirrors the
// call shape of the teacher's own log package (as observed throughout its
// call sites, e.g. miner.worker's log.Info/log.Debug/log.Warn/log.Error
// usage) on top of the standard library's log/slog, since the teacher's
// own handler/terminal-format internals were not present in the retrieval
// pack for this module.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the interface satisfied by the package-level logger and by
// any Logger returned from New. It matches the subset of go-ethereum's
// log.Logger surface this module actually calls.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	New(ctx ...any) Logger
}

// levelTrace is finer than slog's built-in Debug; go-ethereum's log
// package defines the same extra level for the same reason.
const levelTrace = slog.LevelDebug - 4

type logger struct {
	inner *slog.Logger
}

var root Logger = &logger{inner: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelTrace}))}

// SetDefault replaces the package-level root logger, e.g. to redirect to
// JSON output or to raise the minimum level in production.
func SetDefault(l Logger) { root = l }

// New returns a root logger annotated with the given static key-value
// context, analogous to go-ethereum's log.New(ctx...).
func New(ctx ...any) Logger { return root.New(ctx...) }

func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Trace(msg string, ctx ...any) {
	l.inner.Log(context.Background(), levelTrace, msg, ctx...)
}

func (l *logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }
