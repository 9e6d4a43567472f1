// Copyright 2025 Google LLC
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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/proxytest"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/types"
)

func startHost(t *testing.T, config string) (proxytest.HostEmulator, func()) {
	t.Helper()
	opt := proxytest.NewEmulatorOption().WithVMContext(&vmContext{})
	if config != "" {
		opt = opt.WithPluginConfiguration([]byte(config))
	}
	host, reset := proxytest.NewHostEmulator(opt)
	require.Equal(t, types.OnPluginStartStatusOK, host.StartPlugin())
	return host, reset
}

func TestOnHttpRequestHeaders_Prime(t *testing.T) {
	host, reset := startHost(t, "")
	defer reset()

	id := host.InitializeHttpContext()
	action := host.CallOnRequestHeaders(id, [][2]string{
		{"User-Agent", "curl/8.0"},
		{"token", "97"},
	}, false)

	assert.Equal(t, types.ActionContinue, action)
	assert.Nil(t, host.GetSentLocalResponse(id))

	logs := host.GetTraceLogs()
	assert.Contains(t, logs, "UA is curl/8.0")
	assert.Contains(t, logs, "It is prime!!!")

	allowed, err := host.GetCounterMetric(allowedMetric)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), allowed)
}

func TestOnHttpRequestHeaders_NotPrime(t *testing.T) {
	host, reset := startHost(t, "")
	defer reset()

	id := host.InitializeHttpContext()
	action := host.CallOnRequestHeaders(id, [][2]string{{"token", "96"}}, false)

	assert.Equal(t, types.ActionPause, action)
	resp := host.GetSentLocalResponse(id)
	require.NotNil(t, resp)
	assert.Equal(t, uint32(403), resp.StatusCode)
	assert.Equal(t, [][2]string{{"Powered-By", "proxy-wasm"}}, resp.Headers)
	assert.Equal(t, "Access forbidden.\n", string(resp.Data))
	assert.Contains(t, host.GetTraceLogs(), "It is not prime!!! That's true.")

	denied, err := host.GetCounterMetric(deniedMetric)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), denied)
}

func TestOnHttpRequestHeaders_Tokens(t *testing.T) {
	tests := []struct {
		name    string
		headers [][2]string
		want    types.Action
	}{
		{"missing", [][2]string{{"User-Agent", "curl/8.0"}}, types.ActionPause},
		{"non numeric", [][2]string{{"token", "abc"}}, types.ActionPause},
		{"zero", [][2]string{{"token", "0"}}, types.ActionPause},
		{"one", [][2]string{{"token", "1"}}, types.ActionPause},
		{"four", [][2]string{{"token", "4"}}, types.ActionPause},
		{"hundred", [][2]string{{"token", "100"}}, types.ActionPause},
		{"two", [][2]string{{"token", "2"}}, types.ActionContinue},
		{"three", [][2]string{{"token", "3"}}, types.ActionContinue},
		{"seventeen", [][2]string{{"token", "17"}}, types.ActionContinue},
		{"7919", [][2]string{{"token", "7919"}}, types.ActionContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, reset := startHost(t, "")
			defer reset()

			id := host.InitializeHttpContext()
			assert.Equal(t, tt.want, host.CallOnRequestHeaders(id, tt.headers, true))

			resp := host.GetSentLocalResponse(id)
			if tt.want == types.ActionContinue {
				assert.Nil(t, resp)
				return
			}
			require.NotNil(t, resp)
			assert.Equal(t, uint32(403), resp.StatusCode)
			assert.Equal(t, "Access forbidden.\n", string(resp.Data))
		})
	}
}

func TestOnHttpRequestHeaders_LogsEveryHeader(t *testing.T) {
	host, reset := startHost(t, "")
	defer reset()

	id := host.InitializeHttpContext()
	host.CallOnRequestHeaders(id, [][2]string{
		{":path", "/"},
		{"token", "5"},
	}, true)

	logs := host.GetTraceLogs()
	assert.Contains(t, logs, fmt.Sprintf("In WASM: #%d -> :path: /", id))
	assert.Contains(t, logs, fmt.Sprintf("In WASM: #%d -> token: 5", id))
}

func TestOnPluginStart_LogLevelConfig(t *testing.T) {
	host, reset := startHost(t, "info")
	defer reset()

	id := host.InitializeHttpContext()
	action := host.CallOnRequestHeaders(id, [][2]string{{"token", "4"}}, true)

	assert.Equal(t, types.ActionPause, action)
	assert.Empty(t, host.GetTraceLogs())
	assert.NotNil(t, host.GetSentLocalResponse(id))
}

func TestOnPluginStart_InvalidConfig(t *testing.T) {
	opt := proxytest.NewEmulatorOption().
		WithVMContext(&vmContext{}).
		WithPluginConfiguration([]byte("verbose"))
	host, reset := proxytest.NewHostEmulator(opt)
	defer reset()

	assert.Equal(t, types.OnPluginStartStatusFailed, host.StartPlugin())
	assert.NotEmpty(t, host.GetErrorLogs())
}
