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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/iolimit"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

func TestLimiterProxy_AttemptGrantsFromMountLocalBucket(t *testing.T) {
	now := time.Unix(0, 0)
	p := iolimit.New(nil, nil)
	p.Reconfigure(now, map[string]struct{ Rate, Ceil float64 }{
		"default": {Rate: 1, Ceil: 1 << 20},
	})

	granted, err := p.Attempt(context.Background(), now, "default", 1, 4096, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, float64(4096), granted)
}

func TestLimiterProxy_UnknownGroupFailsWithGroupNotRegistered(t *testing.T) {
	p := iolimit.New(nil, nil)
	now := time.Unix(0, 0)

	_, err := p.Attempt(context.Background(), now, "ghost", 1, 10, time.Time{})
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindGroupNotRegistered, lfserrors.KindOf(err))
}

func TestLimiterProxy_KilledGroupFailsPendingAndFutureWaiters(t *testing.T) {
	now := time.Unix(0, 0)
	p := iolimit.New(nil, nil)
	p.Reconfigure(now, map[string]struct{ Rate, Ceil float64 }{
		"gone-soon": {Rate: 1, Ceil: 100},
	})

	// Reconfigure again without "gone-soon" in the list: it is killed.
	p.Reconfigure(now, map[string]struct{ Rate, Ceil float64 }{})

	_, err := p.Attempt(context.Background(), now, "gone-soon", 1, 10, time.Time{})
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindGroupNotRegistered, lfserrors.KindOf(err))
}

func TestLimiterProxy_DeadlineElapsedReturnsTimeout(t *testing.T) {
	now := time.Unix(0, 0)
	p := iolimit.New(nil, nil)
	p.Reconfigure(now, map[string]struct{ Rate, Ceil float64 }{
		"tiny": {Rate: 0, Ceil: 1}, // never refills beyond its initial 1 token
	})

	// Drain the single token, then ask for more with an already-elapsed deadline.
	_, err := p.Attempt(context.Background(), now, "tiny", 1, 1, time.Time{})
	require.NoError(t, err)

	deadline := now // already in the past relative to any later "now" the loop would use
	_, err = p.Attempt(context.Background(), now, "tiny", 1, 1, deadline)
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindTimeout, lfserrors.KindOf(err))
}

func TestLimiterProxy_RecordsWaitLatencyOnGrantAndRejectOnUnknownGroup(t *testing.T) {
	metrics := &common.MockMetricHandle{}
	metrics.On("IOLimitWaitLatency", mock.Anything, mock.Anything, mock.Anything).Return().Once()
	metrics.On("IOLimitRejectCount", mock.Anything, int64(1), mock.Anything).Return().Once()

	now := time.Unix(0, 0)
	p := iolimit.New(nil, metrics)
	p.Reconfigure(now, map[string]struct{ Rate, Ceil float64 }{
		"default": {Rate: 1, Ceil: 1 << 20},
	})

	_, err := p.Attempt(context.Background(), now, "default", 1, 4096, time.Time{})
	require.NoError(t, err)

	_, err = p.Attempt(context.Background(), now, "ghost", 1, 10, time.Time{})
	require.Error(t, err)

	metrics.AssertExpectations(t)
}
