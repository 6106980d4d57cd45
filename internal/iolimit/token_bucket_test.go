// Copyright 2024 Google Inc. All Rights Reserved.
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

package iolimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lizardfs-go/chunkclient/internal/iolimit"
)

func TestTokenBucket_GrantsUpToAvailableLevel(t *testing.T) {
	base := time.Unix(0, 0)
	tb := iolimit.NewTokenBucket(base, 1, 4) // 1 token/sec, ceil 4, starts full

	// Starts full: an immediate request for 2 is granted in full.
	assert.Equal(t, float64(2), tb.Attempt(base, 2))
	assert.Equal(t, float64(2), tb.Level())

	// No time has passed: requesting 4 more only yields the remaining 2.
	assert.Equal(t, float64(2), tb.Attempt(base, 4))
	assert.Equal(t, float64(0), tb.Level())

	// After 4 seconds at 1 token/sec, up to 4 tokens have refilled.
	later := base.Add(4 * time.Second)
	assert.Equal(t, float64(4), tb.Attempt(later, 10))
}

func TestTokenBucket_NeverExceedsCeiling(t *testing.T) {
	base := time.Unix(0, 0)
	tb := iolimit.NewTokenBucket(base, 1, 4)

	far := base.Add(1000 * time.Second)
	assert.Equal(t, float64(4), tb.Attempt(far, 100))
}

func TestTokenBucket_BackwardsTimeDoesNotRefill(t *testing.T) {
	base := time.Unix(100, 0)
	tb := iolimit.NewTokenBucket(base, 1, 4)
	tb.Attempt(base, 4) // drain fully

	past := base.Add(-10 * time.Second)
	assert.Equal(t, float64(0), tb.Attempt(past, 1))
}

func TestTokenBucket_ReconfigureReplacesRateAndCeil(t *testing.T) {
	base := time.Unix(0, 0)
	tb := iolimit.NewTokenBucket(base, 1, 4)
	tb.Attempt(base, 4)

	newBudget := 10.0
	tb.Reconfigure(base, 2, 10, &newBudget)
	assert.Equal(t, float64(10), tb.Level())

	later := base.Add(time.Second)
	assert.Equal(t, float64(10), tb.Attempt(later, 100)) // clamped by new ceil
}
