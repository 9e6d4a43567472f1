// Copyright 2025 Google LLC.
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

package logging

import (
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// New returns a named logger writing to out at the given level.
func New(name string, level tokengate.Level, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclogLevel(level),
		Output: out,
	})
}

func hclogLevel(level tokengate.Level) hclog.Level {
	switch level {
	case tokengate.LevelTrace:
		return hclog.Trace
	case tokengate.LevelDebug:
		return hclog.Debug
	case tokengate.LevelInfo:
		return hclog.Info
	case tokengate.LevelWarn:
		return hclog.Warn
	case tokengate.LevelError, tokengate.LevelCritical:
		return hclog.Error
	default:
		return hclog.Off
	}
}

// Sink adapts an hclog.Logger to the tokengate.Logger interface.
func Sink(logger hclog.Logger) tokengate.Logger {
	return tokengate.LoggerFunc(func(level tokengate.Level, msg string) {
		switch level {
		case tokengate.LevelTrace:
			logger.Trace(msg)
		case tokengate.LevelDebug:
			logger.Debug(msg)
		case tokengate.LevelInfo:
			logger.Info(msg)
		case tokengate.LevelWarn:
			logger.Warn(msg)
		case tokengate.LevelError:
			logger.Error(msg)
		case tokengate.LevelCritical:
			logger.Error(msg, "severity", "critical")
		}
	})
}
