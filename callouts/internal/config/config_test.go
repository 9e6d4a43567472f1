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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:8443", cfg.Address)
	assert.Equal(t, "0.0.0.0:8181", cfg.InsecureAddress)
	assert.Equal(t, "0.0.0.0:8000", cfg.HealthCheckAddress)
	assert.True(t, cfg.EnableInsecureServer)
	assert.False(t, cfg.TLSEnabled())
	assert.NoError(t, cfg.Validate())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, tokengate.LevelTrace, level)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
insecure_address: 127.0.0.1:9181
log_level: info
example_type: prime_token
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9181", cfg.InsecureAddress)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "prime_token", cfg.ExampleType)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultHealthCheckAddress, cfg.HealthCheckAddress)
	assert.True(t, cfg.EnableInsecureServer)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "address: [unterminated"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"EXAMPLE_TYPE": "prime_token",
		"LOG_LEVEL":    "debug",
		"CERT_FILE":    "c.crt",
		"KEY_FILE":     "c.key",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "prime_token", cfg.ExampleType)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.TLSEnabled())

	cfg = Default()
	cfg.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"cert without key", func(c *Config) { c.CertFile = "c.crt" }, true},
		{"no listener", func(c *Config) { c.EnableInsecureServer = false }, true},
		{"tls only", func(c *Config) {
			c.EnableInsecureServer = false
			c.CertFile, c.KeyFile = "c.crt", "c.key"
		}, false},
		{"insecure without address", func(c *Config) { c.InsecureAddress = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
