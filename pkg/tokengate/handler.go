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

// Package tokengate lets a request through only when its "token" header is
// a prime number. Hosts (a proxy-wasm plugin, ext_proc and ext_authz
// callouts) drive the two roles defined here: a Root created once per
// plugin instance, and a RequestHandler created by the Root for each
// request.
package tokengate

// Kind is the class of events a plugin intercepts.
type Kind int

const (
	KindHTTP Kind = iota
	KindStream
)

// Action is the decision returned to the host for a headers event.
type Action int

const (
	// ActionContinue lets the request proceed downstream.
	ActionContinue Action = iota
	// ActionPause halts the request; the host sends Verdict.Response instead.
	ActionPause
)

func (a Action) String() string {
	if a == ActionContinue {
		return "continue"
	}
	return "pause"
}

// Reason records why a verdict was reached. It is never sent to clients.
type Reason int

const (
	ReasonPrime Reason = iota
	ReasonMissing
	ReasonUnparseable
	ReasonNotPrime
)

func (r Reason) String() string {
	switch r {
	case ReasonPrime:
		return "prime"
	case ReasonMissing:
		return "missing"
	case ReasonUnparseable:
		return "unparseable"
	default:
		return "not_prime"
	}
}

const (
	forbiddenStatus = 403
	forbiddenBody   = "Access forbidden.\n"
)

// Response is a synthetic HTTP response produced by the filter.
type Response struct {
	StatusCode uint32
	Headers    Headers
	Body       []byte
}

// ForbiddenResponse returns a new copy of the rejection response.
func ForbiddenResponse() *Response {
	return &Response{
		StatusCode: forbiddenStatus,
		Headers:    Headers{{"Powered-By", "proxy-wasm"}},
		Body:       []byte(forbiddenBody),
	}
}

// Verdict is the outcome of a headers event. Response is set only for
// ActionPause.
type Verdict struct {
	Action   Action
	Reason   Reason
	Response *Response
}

// Evaluate applies the token rule to a header collection. Every reason but
// ReasonPrime is a rejection.
func Evaluate(headers Headers) Reason {
	raw, ok := headers.Get(HeaderToken)
	if !ok {
		return ReasonMissing
	}
	n, err := ParseToken(raw)
	if err != nil {
		return ReasonUnparseable
	}
	if !IsPrime(n) {
		return ReasonNotPrime
	}
	return ReasonPrime
}

// Root is the per-plugin-instance role.
type Root struct {
	log   *LeveledLogger
	level Level
}

// NewRoot returns a Root logging to sink. Nothing is logged until OnStart,
// which raises the verbosity to level.
func NewRoot(sink Logger, level Level) *Root {
	return &Root{
		log:   NewLeveledLogger(sink, LevelOff),
		level: level,
	}
}

// OnStart applies the configured verbosity. It always succeeds.
func (r *Root) OnStart() bool {
	r.log.SetLevel(r.level)
	return true
}

// HandlerKind declares interest in HTTP-level events.
func (r *Root) HandlerKind() Kind { return KindHTTP }

// Logger returns the logger shared by the root and its request handlers.
func (r *Root) Logger() *LeveledLogger { return r.log }

// NewRequestHandler returns a handler bound to requestID.
func (r *Root) NewRequestHandler(requestID uint32) *RequestHandler {
	return &RequestHandler{id: requestID, log: r.log}
}

// State is the lifecycle state of a RequestHandler.
type State int

const (
	StatePending State = iota
	StateDecided
)

// RequestHandler decides a single request. It is not safe for concurrent
// use; hosts deliver events for one request sequentially.
type RequestHandler struct {
	id      uint32
	log     *LeveledLogger
	state   State
	verdict Verdict
}

func (h *RequestHandler) ID() uint32 { return h.id }

func (h *RequestHandler) State() State { return h.state }

// OnRequestHeaders logs the headers and decides the request. The first call
// moves the handler to StateDecided; later calls return the same verdict
// without logging. endOfStream does not affect the decision.
func (h *RequestHandler) OnRequestHeaders(headers Headers, endOfStream bool) Verdict {
	if h.state == StateDecided {
		return h.verdict
	}

	for _, kv := range headers {
		h.log.Tracef("In WASM: #%d -> %s: %s", h.id, kv[0], kv[1])
	}
	if ua, ok := headers.Get(HeaderUserAgent); ok && ua != "" {
		h.log.Tracef("UA is %s", ua)
	}

	reason := Evaluate(headers)
	if reason == ReasonPrime {
		h.log.Tracef("It is prime!!!")
		h.verdict = Verdict{Action: ActionContinue, Reason: reason}
	} else {
		h.log.Tracef("It is not prime!!! That's true.")
		h.verdict = Verdict{Action: ActionPause, Reason: reason, Response: ForbiddenResponse()}
	}
	h.state = StateDecided
	return h.verdict
}
