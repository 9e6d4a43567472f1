// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokengate

import (
	"fmt"
	"strings"

	"go.uber.org/atomic"
)

// Level is a log severity, ordered like the proxy-wasm log levels.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelNames = [...]string{"trace", "debug", "info", "warn", "error", "critical", "off"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelOff {
		return fmt.Sprintf("Level(%d)", int32(l))
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		return LevelWarn, nil
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("unknown log level %q", s)
}

// Logger is a log sink. Hosts adapt their own logging calls to it.
type Logger interface {
	Log(level Level, msg string)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(level Level, msg string)

func (f LoggerFunc) Log(level Level, msg string) { f(level, msg) }

// LeveledLogger drops messages below its current level before they reach
// the sink. The level may be changed concurrently with logging.
type LeveledLogger struct {
	sink  Logger
	level atomic.Int32
}

// NewLeveledLogger returns a logger writing to sink at the given level.
func NewLeveledLogger(sink Logger, level Level) *LeveledLogger {
	l := &LeveledLogger{sink: sink}
	l.level.Store(int32(level))
	return l
}

func (l *LeveledLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *LeveledLogger) Level() Level { return Level(l.level.Load()) }

// Enabled reports whether a message at level would reach the sink.
func (l *LeveledLogger) Enabled(level Level) bool {
	cur := l.Level()
	return cur != LevelOff && level >= cur
}

func (l *LeveledLogger) Log(level Level, msg string) {
	if l.Enabled(level) {
		l.sink.Log(level, msg)
	}
}

func (l *LeveledLogger) Logf(level Level, format string, args ...interface{}) {
	if l.Enabled(level) {
		l.sink.Log(level, fmt.Sprintf(format, args...))
	}
}

func (l *LeveledLogger) Tracef(format string, args ...interface{}) {
	l.Logf(LevelTrace, format, args...)
}
