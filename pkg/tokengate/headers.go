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

package tokengate

import "strings"

const (
	// HeaderToken carries the number checked for primality.
	HeaderToken = "token"
	// HeaderUserAgent is logged when present.
	HeaderUserAgent = "User-Agent"
)

// Headers is an ordered list of (name, value) pairs, in the layout the
// proxy-wasm ABI hands to plugins.
type Headers [][2]string

// Get returns the first value whose name matches case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv[0], name) {
			return kv[1], true
		}
	}
	return "", false
}
