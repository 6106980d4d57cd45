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

package connpool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lizardfs-go/chunkclient/clock"
	"github.com/lizardfs-go/chunkclient/internal/connpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func countingDialer(calls *int32) connpool.Dialer {
	return func(ctx context.Context, address string) (*grpc.ClientConn, error) {
		atomic.AddInt32(calls, 1)
		// A ClientConn constructed without a real dial (no WithBlock) is
		// cheap and safe to hand out in tests: it never hits the network
		// unless something actually issues an RPC on it.
		return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func TestPool_ReusesWarmConnectionWithinTTL(t *testing.T) {
	fc := clock.NewSimulatedClock(time.Unix(0, 0))
	var calls int32
	p := connpool.New(countingDialer(&calls), time.Minute, 1000, fc)

	cc1, err := p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)
	cc2, err := p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)

	assert.Same(t, cc1, cc2)
	assert.EqualValues(t, 1, calls)
}

func TestPool_RedialsAfterTTLExpires(t *testing.T) {
	fc := clock.NewSimulatedClock(time.Unix(0, 0))
	var calls int32
	p := connpool.New(countingDialer(&calls), time.Minute, 1000, fc)

	_, err := p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)

	fc.AdvanceTime(2 * time.Minute)
	_, err = p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls)
}

func TestPool_EvictForcesRedial(t *testing.T) {
	fc := clock.NewSimulatedClock(time.Unix(0, 0))
	var calls int32
	p := connpool.New(countingDialer(&calls), time.Minute, 1000, fc)

	_, err := p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)
	p.Evict("10.0.0.1:9422")
	_, err = p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls)
}

func TestPool_SweepExpiredClearsStaleEntries(t *testing.T) {
	fc := clock.NewSimulatedClock(time.Unix(0, 0))
	var calls int32
	p := connpool.New(countingDialer(&calls), time.Minute, 1000, fc)

	_, err := p.Get(context.Background(), "10.0.0.1:9422")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	fc.AdvanceTime(2 * time.Minute)
	expired := p.SweepExpired()
	assert.Len(t, expired, 1)
	assert.Equal(t, 0, p.Len())
}
