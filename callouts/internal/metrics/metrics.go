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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoogleCloudPlatform/service-extensions/primegate/pkg/tokengate"
)

// Decisions counts request verdicts by action and reason.
type Decisions struct {
	registry *prometheus.Registry
	counter  *prometheus.CounterVec
}

// NewDecisions creates the counter on its own registry.
func NewDecisions() *Decisions {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prime_token_decisions_total",
		Help: "Requests decided by the prime token filter.",
	}, []string{"action", "reason"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(counter)
	return &Decisions{registry: registry, counter: counter}
}

// Observe records one verdict. A nil receiver is a no-op.
func (d *Decisions) Observe(v tokengate.Verdict) {
	if d == nil {
		return
	}
	d.counter.WithLabelValues(v.Action.String(), v.Reason.String()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (d *Decisions) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}
