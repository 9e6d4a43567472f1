// Copyright 2024 Google LLC.
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
	base "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	httpstatus "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/golang/protobuf/proto"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// HeaderImmediateResponse creates an ImmediateResponse with the given status code, headers and body.
// The headers can be appended if appendAction is provided.
func HeaderImmediateResponse(code httpstatus.StatusCode, headers []struct{ Key, Value string }, body string, appendAction *base.HeaderValueOption_HeaderAppendAction) *extproc.ImmediateResponse {
	immediateResponse := &extproc.ImmediateResponse{
		Status: &httpstatus.HttpStatus{
			Code: code,
		},
		Body: []byte(body),
	}

	if len(headers) > 0 {
		headerMutation := &extproc.HeaderMutation{}
		for _, h := range headers {
			headerValueOption := &base.HeaderValueOption{
				Header: &base.HeaderValue{
					Key:      h.Key,
					RawValue: []byte(h.Value),
				},
			}
			if appendAction != nil {
				headerValueOption.AppendAction = *appendAction
			}
			headerMutation.SetHeaders = append(headerMutation.SetHeaders, headerValueOption)
		}
		immediateResponse.Headers = proto.Clone(headerMutation).(*extproc.HeaderMutation)
	}
	return immediateResponse
}

// SyntheticImmediateResponse converts a filter response into an ImmediateResponse.
func SyntheticImmediateResponse(resp *tokengate.Response) *extproc.ImmediateResponse {
	headers := make([]struct{ Key, Value string }, 0, len(resp.Headers))
	for _, h := range resp.Headers {
		headers = append(headers, struct{ Key, Value string }{Key: h[0], Value: h[1]})
	}
	return HeaderImmediateResponse(httpstatus.StatusCode(resp.StatusCode), headers, string(resp.Body), nil)
}

// HeadersFromMap converts an Envoy header map into an ordered header list.
// Envoy fills raw_value for header values; value is used when it is empty.
func HeadersFromMap(headers *base.HeaderMap) tokengate.Headers {
	var out tokengate.Headers
	for _, h := range headers.GetHeaders() {
		value := string(h.GetRawValue())
		if value == "" {
			value = h.GetValue()
		}
		out = append(out, [2]string{h.GetKey(), value})
	}
	return out
}
