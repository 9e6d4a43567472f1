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

// Package client sends ProcessingRequest streams to an ext_proc server.
package client

import (
	"context"
	"encoding/json"
	"io"

	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

// Dial creates a gRPC client connection to the given address. certFile
// holds the CA root used when useTLS is set.
func Dial(addr string, useTLS bool, certFile string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if useTLS {
		var err error
		creds, err = credentials.NewClientTLSFromFile(certFile, "")
		if err != nil {
			return nil, errors.Wrap(err, "loading CA certificate")
		}
	}
	opts = append(opts, grpc.WithTransportCredentials(creds))
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return conn, nil
}

// ParseRequests reads a JSON array of ProcessingRequest objects.
func ParseRequests(jsonData string) ([]*extproc.ProcessingRequest, error) {
	var rawRequests []json.RawMessage
	if err := json.Unmarshal([]byte(jsonData), &rawRequests); err != nil {
		return nil, errors.Wrap(err, "decoding request list")
	}

	requests := make([]*extproc.ProcessingRequest, 0, len(rawRequests))
	for i, raw := range rawRequests {
		req := &extproc.ProcessingRequest{}
		if err := protojson.Unmarshal(raw, req); err != nil {
			return nil, errors.Wrapf(err, "decoding request %d", i)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// Process sends requests on a single stream, closes the send side and
// returns every response received until the server ends the stream.
func Process(ctx context.Context, conn grpc.ClientConnInterface, requests []*extproc.ProcessingRequest) ([]*extproc.ProcessingResponse, error) {
	stream, err := extproc.NewExternalProcessorClient(conn).Process(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "opening stream")
	}

	for _, req := range requests {
		if err := stream.Send(req); err != nil {
			return nil, errors.Wrap(err, "sending request")
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "closing stream")
	}

	var responses []*extproc.ProcessingResponse
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "receiving response")
		}
		responses = append(responses, resp)
	}
	return responses, nil
}
