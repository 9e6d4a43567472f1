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

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ErrTokenUnparseable is returned by ParseToken for values that are not a
// decimal unsigned 64-bit integer.
var ErrTokenUnparseable = errors.New("token is not an unsigned 64-bit integer")

// ParseToken parses a token header value. A single leading '+' is accepted.
func ParseToken(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrTokenUnparseable, s)
	}
	return n, nil
}

// Witness bases for Miller-Rabin. Testing against all of them is exact for
// every n below 3.3e24, which covers uint64.
var smallPrimes = [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

// IsPrime reports whether n is prime. 0 and 1 are not.
func IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	for _, p := range smallPrimes {
		if n%p == 0 {
			return n == p
		}
	}
	// No factor up to 37, so anything below 41^2 is prime.
	if n < 41*41 {
		return true
	}

	d, s := n-1, 0
	for d%2 == 0 {
		d /= 2
		s++
	}
	for _, a := range smallPrimes {
		if !strongProbablePrime(n, d, s, a) {
			return false
		}
	}
	return true
}

// strongProbablePrime runs one Miller-Rabin round for base a, where
// n-1 = d * 2^s with d odd.
func strongProbablePrime(n, d uint64, s int, a uint64) bool {
	x := powMod(a, d, n)
	if x == 1 || x == n-1 {
		return true
	}
	for i := 1; i < s; i++ {
		x = mulMod(x, x, n)
		if x == n-1 {
			return true
		}
	}
	return false
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

func powMod(base, exp, m uint64) uint64 {
	result := uint64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, m)
		}
		base = mulMod(base, base, m)
		exp >>= 1
	}
	return result
}
