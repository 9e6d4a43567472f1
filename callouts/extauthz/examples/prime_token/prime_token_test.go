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
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	auth "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/logging"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/internal/metrics"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

func createCheckRequest(headers map[string]string) *auth.CheckRequest {
	return &auth.CheckRequest{
		Attributes: &auth.AttributeContext{
			Request: &auth.AttributeContext_Request{
				Http: &auth.AttributeContext_HttpRequest{
					Headers: headers,
				},
			},
		},
	}
}

var allowed = &auth.CheckResponse{
	Status: &rpcstatus.Status{Code: int32(codes.OK)},
	HttpResponse: &auth.CheckResponse_OkResponse{
		OkResponse: &auth.OkHttpResponse{},
	},
}

var denied = &auth.CheckResponse{
	Status: &rpcstatus.Status{Code: int32(codes.PermissionDenied)},
	HttpResponse: &auth.CheckResponse_DeniedResponse{
		DeniedResponse: &auth.DeniedHttpResponse{
			Status: &typev3.HttpStatus{Code: typev3.StatusCode_Forbidden},
			Headers: []*core.HeaderValueOption{
				{Header: &core.HeaderValue{Key: "Powered-By", Value: "proxy-wasm"}},
			},
			Body: "Access forbidden.\n",
		},
	},
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		request *auth.CheckRequest
		want    *auth.CheckResponse
	}{
		{"prime", createCheckRequest(map[string]string{"token": "97"}), allowed},
		{"max prime", createCheckRequest(map[string]string{"token": "18446744073709551557"}), allowed},
		{"not prime", createCheckRequest(map[string]string{"token": "100"}), denied},
		{"zero", createCheckRequest(map[string]string{"token": "0"}), denied},
		{"missing", createCheckRequest(map[string]string{"user-agent": "curl/8.0"}), denied},
		{"unparseable", createCheckRequest(map[string]string{"token": "seven"}), denied},
		{"joined duplicates", createCheckRequest(map[string]string{"token": "13,17"}), denied},
		{"no attributes", &auth.CheckRequest{}, denied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewCalloutServerExample(nil, tokengate.LevelTrace, nil)

			got, err := service.Check(context.Background(), tt.request)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, protocmp.Transform()); diff != "" {
				t.Errorf("Check() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestCheckHeaderMap covers Envoy configured with encode_raw_headers, which
// sends header_map instead of the headers map.
func TestCheckHeaderMap(t *testing.T) {
	headerMapRequest := func(token string) *auth.CheckRequest {
		return &auth.CheckRequest{
			Attributes: &auth.AttributeContext{
				Request: &auth.AttributeContext_Request{
					Http: &auth.AttributeContext_HttpRequest{
						HeaderMap: &core.HeaderMap{
							Headers: []*core.HeaderValue{
								{Key: "token", RawValue: []byte(token)},
							},
						},
					},
				},
			},
		}
	}
	service := NewCalloutServerExample(nil, tokengate.LevelTrace, nil)

	got, err := service.Check(context.Background(), headerMapRequest("97"))
	require.NoError(t, err)
	if diff := cmp.Diff(allowed, got, protocmp.Transform()); diff != "" {
		t.Errorf("Check() mismatch (-want +got):\n%s", diff)
	}

	got, err = service.Check(context.Background(), headerMapRequest("96"))
	require.NoError(t, err)
	if diff := cmp.Diff(denied, got, protocmp.Transform()); diff != "" {
		t.Errorf("Check() mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckLogsAndMetrics(t *testing.T) {
	var out bytes.Buffer
	decisions := metrics.NewDecisions()
	service := NewCalloutServerExample(logging.New("prime_token", tokengate.LevelTrace, &out), tokengate.LevelTrace, decisions)

	_, err := service.Check(context.Background(), createCheckRequest(map[string]string{"token": "7", "user-agent": "curl/8.0"}))
	require.NoError(t, err)
	_, err = service.Check(context.Background(), createCheckRequest(nil))
	require.NoError(t, err)

	logs := out.String()
	assert.Contains(t, logs, "In WASM: #1 -> token: 7")
	assert.Contains(t, logs, "UA is curl/8.0")
	assert.Contains(t, logs, "It is prime!!!")
	assert.Contains(t, logs, "It is not prime!!! That's true.")

	rec := httptest.NewRecorder()
	decisions.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `prime_token_decisions_total{action="continue",reason="prime"} 1`)
	assert.Contains(t, rec.Body.String(), `prime_token_decisions_total{action="pause",reason="missing"} 1`)
}
