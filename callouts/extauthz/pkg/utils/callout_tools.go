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

package utils

import (
	"sort"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	auth "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"

	extprocutils "github.com/GoogleCloudPlatform/service-extensions/primegate/callouts/extproc/pkg/utils"
	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// AllowRequest creates an allowed response with optional headers.
func AllowRequest(headersToAdd tokengate.Headers) *auth.CheckResponse {
	okResponse := &auth.OkHttpResponse{
		Headers: headerOptions(headersToAdd),
	}

	return &auth.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.OK)},
		HttpResponse: &auth.CheckResponse_OkResponse{
			OkResponse: okResponse,
		},
	}
}

// DenyRequest creates a denied response with status, body and headers.
func DenyRequest(statusCode typev3.StatusCode, body string, headers tokengate.Headers) *auth.CheckResponse {
	deniedResponse := &auth.DeniedHttpResponse{
		Status:  &typev3.HttpStatus{Code: statusCode},
		Body:    body,
		Headers: headerOptions(headers),
	}

	return &auth.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.PermissionDenied)},
		HttpResponse: &auth.CheckResponse_DeniedResponse{
			DeniedResponse: deniedResponse,
		},
	}
}

// DenyWithResponse converts a filter response into a denied CheckResponse.
func DenyWithResponse(resp *tokengate.Response) *auth.CheckResponse {
	return DenyRequest(typev3.StatusCode(resp.StatusCode), string(resp.Body), resp.Headers)
}

func headerOptions(headers tokengate.Headers) []*core.HeaderValueOption {
	var options []*core.HeaderValueOption
	for _, h := range headers {
		options = append(options, &core.HeaderValueOption{
			Header: &core.HeaderValue{
				Key:   h[0],
				Value: h[1],
			},
		})
	}
	return options
}

// ExtractHeaders returns the request headers. With encode_raw_headers Envoy
// fills header_map, which keeps the request order. Otherwise headers is a map
// with lowercase keys and duplicates joined by commas, returned sorted by
// name.
func ExtractHeaders(req *auth.CheckRequest) tokengate.Headers {
	httpReq := req.GetAttributes().GetRequest().GetHttp()
	if httpReq == nil {
		return nil
	}
	if headerMap := httpReq.GetHeaderMap(); headerMap != nil {
		return extprocutils.HeadersFromMap(headerMap)
	}

	names := make([]string, 0, len(httpReq.GetHeaders()))
	for name := range httpReq.GetHeaders() {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make(tokengate.Headers, 0, len(names))
	for _, name := range names {
		headers = append(headers, [2]string{name, httpReq.GetHeaders()[name]})
	}
	return headers
}
