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

package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"

	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/config"
)

// CalloutServer runs the ext_proc gRPC listeners and the health check.
type CalloutServer struct {
	Config  config.Config
	Cert    tls.Certificate
	Logger  hclog.Logger
	Metrics http.Handler
}

// NewCalloutServer creates a CalloutServer, loading the key pair when one is
// configured.
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

// Run starts every enabled listener and blocks until ctx is done or one of
// them fails.
func (s *CalloutServer) Run(ctx context.Context, service extproc.ExternalProcessorServer) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.Config.TLSEnabled() {
		g.Go(func() error { return s.StartGRPC(ctx, service) })
	}
	if s.Config.EnableInsecureServer {
		g.Go(func() error { return s.StartInsecureGRPC(ctx, service) })
	}
	if s.Config.HealthCheckAddress != "" {
		g.Go(func() error { return s.StartHealthCheck(ctx) })
	}
	return g.Wait()
}

// StartGRPC serves the service over TLS on Config.Address.
func (s *CalloutServer) StartGRPC(ctx context.Context, service extproc.ExternalProcessorServer) error {
	lis, err := net.Listen("tcp", s.Config.Address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	creds := credentials.NewServerTLSFromCert(&s.Cert)
	s.Logger.Info("starting secure gRPC server", "address", lis.Addr().String())
	return s.serveGRPC(ctx, lis, service, grpc.Creds(creds))
}

// StartInsecureGRPC serves the service without TLS on Config.InsecureAddress.
func (s *CalloutServer) StartInsecureGRPC(ctx context.Context, service extproc.ExternalProcessorServer) error {
	if !s.Config.EnableInsecureServer {
		return nil
	}
	lis, err := net.Listen("tcp", s.Config.InsecureAddress)
	if err != nil {
		return errors.Wrap(err, "failed to listen on insecure port")
	}
	s.Logger.Info("starting insecure gRPC server", "address", lis.Addr().String())
	return s.serveGRPC(ctx, lis, service)
}

func (s *CalloutServer) serveGRPC(ctx context.Context, lis net.Listener, service extproc.ExternalProcessorServer, opts ...grpc.ServerOption) error {
	grpcServer := grpc.NewServer(opts...)
	extproc.RegisterExternalProcessorServer(grpcServer, service)
	reflection.Register(grpcServer)

	stop := context.AfterFunc(ctx, grpcServer.GracefulStop)
	defer stop()
	if err := grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return errors.Wrap(err, "failed to serve gRPC")
	}
	return nil
}

// StartHealthCheck serves "/" with 200 OK and, when Metrics is set,
// "/metrics".
func (s *CalloutServer) StartHealthCheck(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Config.HealthCheckAddress)
	if err != nil {
		return errors.Wrap(err, "failed to listen on health check port")
	}
	s.Logger.Info("starting health check server", "address", lis.Addr().String())
	return s.serveHealthCheck(ctx, lis)
}

func (s *CalloutServer) serveHealthCheck(ctx context.Context, lis net.Listener) error {
	server := &http.Server{Handler: s.healthMux()}
	stop := context.AfterFunc(ctx, func() { server.Close() })
	defer stop()
	if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "failed to serve health check")
	}
	return nil
}

func (s *CalloutServer) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}
	return mux
}

type RequestHeadersHandler func(*extproc.HttpHeaders) (*extproc.ProcessingResponse, error)
type ResponseHeadersHandler func(*extproc.HttpHeaders) (*extproc.ProcessingResponse, error)
type RequestBodyHandler func(*extproc.HttpBody) (*extproc.ProcessingResponse, error)
type ResponseBodyHandler func(*extproc.HttpBody) (*extproc.ProcessingResponse, error)
type RequestTrailersHandler func(*extproc.HttpTrailers) (*extproc.ProcessingResponse, error)
type ResponseTrailersHandler func(*extproc.HttpTrailers) (*extproc.ProcessingResponse, error)

// HandlerRegistry holds the per-message handlers of a service. A nil entry
// falls back to a pass-through response of the matching type.
type HandlerRegistry struct {
	RequestHeadersHandler   RequestHeadersHandler
	ResponseHeadersHandler  ResponseHeadersHandler
	RequestBodyHandler      RequestBodyHandler
	ResponseBodyHandler     ResponseBodyHandler
	RequestTrailersHandler  RequestTrailersHandler
	ResponseTrailersHandler ResponseTrailersHandler
}

type GRPCCalloutService struct {
	extproc.UnimplementedExternalProcessorServer
	Handlers HandlerRegistry
}

// Process answers every message of the stream with the registered handler's
// response. The stream ends cleanly when the client closes its side.
func (s *GRPCCalloutService) Process(stream extproc.ExternalProcessor_ProcessServer) error {
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var response *extproc.ProcessingResponse
		switch {
		case req.GetRequestHeaders() != nil:
			handler := s.Handlers.RequestHeadersHandler
			if handler == nil {
				handler = s.HandleRequestHeaders
			}
			response, err = handler(req.GetRequestHeaders())
		case req.GetResponseHeaders() != nil:
			handler := s.Handlers.ResponseHeadersHandler
			if handler == nil {
				handler = s.HandleResponseHeaders
			}
			response, err = handler(req.GetResponseHeaders())
		case req.GetRequestBody() != nil:
			handler := s.Handlers.RequestBodyHandler
			if handler == nil {
				handler = s.HandleRequestBody
			}
			response, err = handler(req.GetRequestBody())
		case req.GetResponseBody() != nil:
			handler := s.Handlers.ResponseBodyHandler
			if handler == nil {
				handler = s.HandleResponseBody
			}
			response, err = handler(req.GetResponseBody())
		case req.GetRequestTrailers() != nil:
			handler := s.Handlers.RequestTrailersHandler
			if handler == nil {
				handler = s.HandleRequestTrailers
			}
			response, err = handler(req.GetRequestTrailers())
		case req.GetResponseTrailers() != nil:
			handler := s.Handlers.ResponseTrailersHandler
			if handler == nil {
				handler = s.HandleResponseTrailers
			}
			response, err = handler(req.GetResponseTrailers())
		}

		if err != nil {
			return err
		}

		if response != nil {
			if err := stream.Send(response); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCCalloutService) HandleRequestHeaders(headers *extproc.HttpHeaders) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_RequestHeaders{
			RequestHeaders: &extproc.HeadersResponse{},
		},
	}, nil
}

func (s *GRPCCalloutService) HandleResponseHeaders(headers *extproc.HttpHeaders) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_ResponseHeaders{
			ResponseHeaders: &extproc.HeadersResponse{},
		},
	}, nil
}

func (s *GRPCCalloutService) HandleRequestBody(body *extproc.HttpBody) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_RequestBody{
			RequestBody: &extproc.BodyResponse{},
		},
	}, nil
}

func (s *GRPCCalloutService) HandleResponseBody(body *extproc.HttpBody) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_ResponseBody{
			ResponseBody: &extproc.BodyResponse{},
		},
	}, nil
}

func (s *GRPCCalloutService) HandleRequestTrailers(trailers *extproc.HttpTrailers) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_RequestTrailers{
			RequestTrailers: &extproc.TrailersResponse{},
		},
	}, nil
}

func (s *GRPCCalloutService) HandleResponseTrailers(trailers *extproc.HttpTrailers) (*extproc.ProcessingResponse, error) {
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_ResponseTrailers{
			ResponseTrailers: &extproc.TrailersResponse{},
		},
	}, nil
}
