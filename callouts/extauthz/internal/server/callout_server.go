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

package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	auth "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/config"
)

// CalloutServer represents a server that handles extauthz callouts.
type CalloutServer struct {
	Config  config.Config
	Cert    tls.Certificate
	Logger  hclog.Logger
	Metrics http.Handler
}

// NewCalloutServer creates a new CalloutServer with the given configuration.
func NewCalloutServer(cfg config.Config, logger hclog.Logger) (*CalloutServer, error) {
	var cert tls.Certificate
	if cfg.TLSEnabled() {
		var err error
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load server certificate")
		}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CalloutServer{
		Config: cfg,
		Cert:   cert,
		Logger: logger,
	}, nil
}

// Run serves the enabled listeners until ctx is done or one of them fails.
func (s *CalloutServer) Run(ctx context.Context, service auth.AuthorizationServer) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.Config.TLSEnabled() {
		g.Go(func() error {
			lis, err := net.Listen("tcp", s.Config.Address)
			if err != nil {
				return errors.Wrap(err, "failed to listen")
			}
			s.Logger.Info("starting secure gRPC server", "address", lis.Addr().String())
			return s.serveGRPC(ctx, lis, service, grpc.Creds(credentials.NewServerTLSFromCert(&s.Cert)))
		})
	}
	if s.Config.EnableInsecureServer {
		g.Go(func() error {
			lis, err := net.Listen("tcp", s.Config.InsecureAddress)
			if err != nil {
				return errors.Wrap(err, "failed to listen on insecure port")
			}
			s.Logger.Info("starting insecure gRPC server", "address", lis.Addr().String())
			return s.serveGRPC(ctx, lis, service)
		})
	}
	if s.Config.HealthCheckAddress != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", s.Config.HealthCheckAddress)
			if err != nil {
				return errors.Wrap(err, "failed to listen on health check port")
			}
			s.Logger.Info("starting health check server", "address", lis.Addr().String())
			return s.serveHealthCheck(ctx, lis)
		})
	}
	return g.Wait()
}

func (s *CalloutServer) serveGRPC(ctx context.Context, lis net.Listener, service auth.AuthorizationServer, opts ...grpc.ServerOption) error {
	grpcServer := grpc.NewServer(opts...)
	auth.RegisterAuthorizationServer(grpcServer, service)
	reflection.Register(grpcServer)

	stop := context.AfterFunc(ctx, grpcServer.GracefulStop)
	defer stop()
	if err := grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return errors.Wrap(err, "failed to serve gRPC")
	}
	return nil
}

func (s *CalloutServer) serveHealthCheck(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	server := &http.Server{Handler: mux}
	stop := context.AfterFunc(ctx, func() { server.Close() })
	defer stop()
	if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "failed to serve health check")
	}
	return nil
}

// CheckHandler defines the function signature for authorization check handlers
type CheckHandler func(context.Context, *auth.CheckRequest) (*auth.CheckResponse, error)

// GRPCCalloutService implements the gRPC AuthorizationServer.
type GRPCCalloutService struct {
	auth.UnimplementedAuthorizationServer
	CheckHandler CheckHandler
}

// Check processes incoming auth check requests. Without a handler every
// request is allowed.
func (s *GRPCCalloutService) Check(ctx context.Context, req *auth.CheckRequest) (*auth.CheckResponse, error) {
	if s.CheckHandler != nil {
		return s.CheckHandler(ctx, req)
	}
	return &auth.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.OK)},
	}, nil
}
