// Copyright 2024 Google LLC.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/examples/prime_token"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/internal/server"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/pkg/client"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/config"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/logging"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/metrics"
)

// ExampleService defines the interface that all example services must implement.
type ExampleService interface {
	extproc.ExternalProcessorServer
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
		Use:          "extproc",
		Short:        "Run an ext_proc callout server",
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
	cmd.AddCommand(newProbeCmd())
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
		return prime_token.NewExampleCalloutService(logger.Named("prime_token"), level, decisions), nil
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
	logger := logging.New("extproc", level, os.Stderr)

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

	if err := calloutServer.Run(ctx, customService); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}

func newProbeCmd() *cobra.Command {
	var (
		addr     string
		useTLS   bool
		certFile string
		data     string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send ProcessingRequests read from JSON to a running server",
		Example: `  extproc probe --addr localhost:8181 \
    --data '[{"requestHeaders": {"headers": {"headers": [{"key": "token", "rawValue": "OTc="}]}}}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := client.ParseRequests(data)
			if err != nil {
				return err
			}
			conn, err := client.Dial(addr, useTLS, certFile)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			responses, err := client.Process(ctx, conn, requests)
			if err != nil {
				return err
			}
			for _, resp := range responses {
				respJSON, err := protojson.Marshal(resp)
				if err != nil {
					return errors.Wrap(err, "encoding response")
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(respJSON))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8181", "server address in the format of host:port")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "connect with TLS")
	cmd.Flags().StringVar(&certFile, "cert_file", "", "CA root certificate used with --tls")
	cmd.Flags().StringVar(&data, "data", "", "JSON list of ProcessingRequest objects")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "stream deadline")
	cmd.MarkFlagRequired("data")
	return cmd
}
