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

// [START serviceextensions_plugin_prime_token]
package main

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/types"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

const (
	allowedMetric = "prime_token.requests_allowed"
	deniedMetric  = "prime_token.requests_denied"
)

func main() {}
func init() {
	proxywasm.SetVMContext(&vmContext{})
}

type vmContext struct {
	types.DefaultVMContext
}

type pluginContext struct {
	types.DefaultPluginContext
	root    *tokengate.Root
	allowed proxywasm.MetricCounter
	denied  proxywasm.MetricCounter
}

type httpContext struct {
	types.DefaultHttpContext
	pluginContext *pluginContext
	handler       *tokengate.RequestHandler
}

// hostLogger forwards tokengate log lines to the host's logging calls.
var hostLogger = tokengate.LoggerFunc(func(level tokengate.Level, msg string) {
	switch level {
	case tokengate.LevelTrace:
		proxywasm.LogTrace(msg)
	case tokengate.LevelDebug:
		proxywasm.LogDebug(msg)
	case tokengate.LevelInfo:
		proxywasm.LogInfo(msg)
	case tokengate.LevelWarn:
		proxywasm.LogWarn(msg)
	case tokengate.LevelError:
		proxywasm.LogError(msg)
	case tokengate.LevelCritical:
		proxywasm.LogCritical(msg)
	}
})

func (*vmContext) NewPluginContext(contextID uint32) types.PluginContext {
	return &pluginContext{}
}

// OnPluginStart reads an optional log level name from the plugin
// configuration. Without one the plugin logs at trace level.
func (ctx *pluginContext) OnPluginStart(int) types.OnPluginStartStatus {
	level := tokengate.LevelTrace
	config, err := proxywasm.GetPluginConfiguration()
	if err != nil && err != types.ErrorStatusNotFound {
		proxywasm.LogErrorf("Error reading the configuration: %v", err)
		return types.OnPluginStartStatusFailed
	}
	if name := strings.TrimSpace(string(config)); name != "" {
		level, err = tokengate.ParseLevel(name)
		if err != nil {
			proxywasm.LogErrorf("Invalid configuration: %v", err)
			return types.OnPluginStartStatusFailed
		}
	}

	ctx.root = tokengate.NewRoot(hostLogger, level)
	if !ctx.root.OnStart() {
		return types.OnPluginStartStatusFailed
	}
	ctx.allowed = proxywasm.DefineCounterMetric(allowedMetric)
	ctx.denied = proxywasm.DefineCounterMetric(deniedMetric)
	return types.OnPluginStartStatusOK
}

func (ctx *pluginContext) NewHttpContext(contextID uint32) types.HttpContext {
	return &httpContext{
		pluginContext: ctx,
		handler:       ctx.root.NewRequestHandler(contextID),
	}
}

// Lets the request through only when the "token" header is a prime number,
// otherwise answers 403.
func (ctx *httpContext) OnHttpRequestHeaders(numHeaders int, endOfStream bool) types.Action {
	defer func() {
		err := recover()
		if err != nil {
			proxywasm.SendHttpResponse(500, [][2]string{}, []byte(fmt.Sprintf("%v", err)), 0)
		}
	}()
	headers, err := proxywasm.GetHttpRequestHeaders()
	if err != nil {
		proxywasm.LogErrorf("Failed to get request headers: %v", err)
		headers = nil
	}

	verdict := ctx.handler.OnRequestHeaders(tokengate.Headers(headers), endOfStream)
	if verdict.Action == tokengate.ActionContinue {
		ctx.pluginContext.allowed.Increment(1)
		return types.ActionContinue
	}

	ctx.pluginContext.denied.Increment(1)
	resp := verdict.Response
	if err := proxywasm.SendHttpResponse(resp.StatusCode, resp.Headers, resp.Body, -1); err != nil {
		proxywasm.LogErrorf("Failed to send local response: %v", err)
	}
	return types.ActionPause
}

// [END serviceextensions_plugin_prime_token]
