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

// Package config loads the settings shared by the callout servers.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

const (
	DefaultAddress            = "0.0.0.0:8443"
	DefaultInsecureAddress    = "0.0.0.0:8181"
	DefaultHealthCheckAddress = "0.0.0.0:8000"
	DefaultLogLevel           = "trace"
)

// Config holds the server configuration parameters.
type Config struct {
	Address              string `yaml:"address"`
	InsecureAddress      string `yaml:"insecure_address"`
	HealthCheckAddress   string `yaml:"health_check_address"`
	CertFile             string `yaml:"cert_file"`
	KeyFile              string `yaml:"key_file"`
	EnableInsecureServer bool   `yaml:"enable_insecure_server"`
	LogLevel             string `yaml:"log_level"`
	ExampleType          string `yaml:"example_type"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Address:              DefaultAddress,
		InsecureAddress:      DefaultInsecureAddress,
		HealthCheckAddress:   DefaultHealthCheckAddress,
		EnableInsecureServer: true,
		LogLevel:             DefaultLogLevel,
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from EXAMPLE_TYPE, LOG_LEVEL, CERT_FILE and
// KEY_FILE when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("EXAMPLE_TYPE"); v != "" {
		c.ExampleType = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("CERT_FILE"); v != "" {
		c.CertFile = v
	}
	if v := getenv("KEY_FILE"); v != "" {
		c.KeyFile = v
	}
}

// Level returns the parsed log level.
func (c Config) Level() (tokengate.Level, error) {
	return tokengate.ParseLevel(c.LogLevel)
}

// TLSEnabled reports whether a key pair is configured.
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Validate checks the configuration for settings the servers cannot run with.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	if !c.TLSEnabled() && !c.EnableInsecureServer {
		return errors.New("no listener enabled: set cert_file and key_file or enable_insecure_server")
	}
	if c.EnableInsecureServer && c.InsecureAddress == "" {
		return errors.New("enable_insecure_server requires insecure_address")
	}
	return nil
}
