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
	"context"

	auth "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extauthz/internal/server"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extauthz/pkg/utils"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/logging"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/metrics"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// CalloutServerExample authorizes requests whose "token" header holds a
// prime number.
type CalloutServerExample struct {
	server.GRPCCalloutService

	root    *tokengate.Root
	metrics *metrics.Decisions
	nextID  atomic.Uint32
}

// NewCalloutServerExample creates a started service logging to logger at
// level. decisions may be nil.
func NewCalloutServerExample(logger hclog.Logger, level tokengate.Level, decisions *metrics.Decisions) *CalloutServerExample {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	service := &CalloutServerExample{
		root:    tokengate.NewRoot(logging.Sink(logger), level),
		metrics: decisions,
	}
	service.root.OnStart()
	service.CheckHandler = service.handleCheck
	return service
}

func (s *CalloutServerExample) handleCheck(ctx context.Context, req *auth.CheckRequest) (*auth.CheckResponse, error) {
	handler := s.root.NewRequestHandler(s.nextID.Inc())
	verdict := handler.OnRequestHeaders(utils.ExtractHeaders(req), true)
	s.metrics.Observe(verdict)

	if verdict.Action == tokengate.ActionContinue {
		return utils.AllowRequest(nil), nil
	}
	return utils.DenyWithResponse(verdict.Response), nil
}
