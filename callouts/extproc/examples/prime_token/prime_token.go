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

package prime_token

import (
	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/internal/server"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/pkg/utils"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/logging"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/metrics"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// ExampleCalloutService lets a request through when its "token" header
// holds a prime number and answers 403 otherwise.
type ExampleCalloutService struct {
	server.GRPCCalloutService

	root    *tokengate.Root
	metrics *metrics.Decisions
	nextID  atomic.Uint32
}

// NewExampleCalloutService creates a started service logging to logger at
// level. decisions may be nil.
func NewExampleCalloutService(logger hclog.Logger, level tokengate.Level, decisions *metrics.Decisions) *ExampleCalloutService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	service := &ExampleCalloutService{
		root:    tokengate.NewRoot(logging.Sink(logger), level),
		metrics: decisions,
	}
	service.root.OnStart()
	service.Handlers.RequestHeadersHandler = service.HandleRequestHeaders
	return service
}

// HandleRequestHeaders decides the request from its headers. Accepted
// requests continue unchanged; rejected ones get an immediate response.
func (s *ExampleCalloutService) HandleRequestHeaders(headers *extproc.HttpHeaders) (*extproc.ProcessingResponse, error) {
	handler := s.root.NewRequestHandler(s.nextID.Inc())
	verdict := handler.OnRequestHeaders(utils.HeadersFromMap(headers.GetHeaders()), headers.GetEndOfStream())
	s.metrics.Observe(verdict)

	if verdict.Action == tokengate.ActionContinue {
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_RequestHeaders{
				RequestHeaders: &extproc.HeadersResponse{},
			},
		}, nil
	}
	return &extproc.ProcessingResponse{
		Response: &extproc.ProcessingResponse_ImmediateResponse{
			ImmediateResponse: utils.SyntheticImmediateResponse(verdict.Response),
		},
	}, nil
}
