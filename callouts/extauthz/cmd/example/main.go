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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extauthz/examples/prime_token"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extauthz/internal/server"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/config"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/logging"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/metrics"
)

// ExampleService defines the interface that all example services must implement.
type ExampleService interface {
	auth.AuthorizationServer
}

type options struct {
	configFile  string
	exampleType string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "extauthz",
		Short:        "Run an ext_authz callout server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "server config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.exampleType, "example", "", "example service to run (overrides EXAMPLE_TYPE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	return cmd
}

// loadConfig resolves the configuration from the file, the environment and
// the flags, in increasing order of precedence.
func loadConfig(opts *options, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(getenv)
	if opts.exampleType != "" {
		cfg.ExampleType = opts.exampleType
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func newService(cfg config.Config, logger hclog.Logger, decisions *metrics.Decisions) (ExampleService, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	switch cfg.ExampleType {
	case "prime_token":
		return prime_token.NewCalloutServerExample(logger.Named("prime_token"), level, decisions), nil
	default:
		return nil, errors.Errorf("unknown example type %q", cfg.ExampleType)
	}
}

func serve(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := logging.New("extauthz", level, os.Stderr)

	decisions := metrics.NewDecisions()
	customService, err := newService(cfg, logger, decisions)
	if err != nil {
		logger.Error("cannot create service", "error", err)
		return err
	}

	calloutServer, err := server.NewCalloutServer(cfg, logger)
	if err != nil {
		logger.Error("cannot create server", "error", err)
		return err
	}
	calloutServer.Metrics = decisions.Handler()

	logger.Info("started extauthz callout server", "example", cfg.ExampleType)
	if err := calloutServer.Run(ctx, customService); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}
