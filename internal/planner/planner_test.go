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

package planner_test

import (
	"testing"
	"time"

	"github.com/lizardfs-go/chunkclient/clock"
	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/csstats"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStats() *csstats.Registry {
	return csstats.New(clock.NewSimulatedClock(time.Unix(0, 0)), int64(time.Second))
}

func TestPlan_StandardSingleReplicaOneWaveOneRequest(t *testing.T) {
	stats := newStats()
	replicas := []planner.Replica{
		{Address: "10.0.0.1:9422", Scheme: chunktype.Standard()},
	}

	p, err := planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.NoError(t, err)
	require.Len(t, p.Waves, 1)
	assert.Len(t, p.Waves[0].Requests, 1)
	assert.Equal(t, int64(0), p.Waves[0].DelayMs)
}

func TestPlan_XorRequestsWidthColumnsInOneWave(t *testing.T) {
	stats := newStats()
	scheme, err := chunktype.Xor(2, 0)
	require.NoError(t, err)

	replicas := []planner.Replica{
		{Address: "10.0.0.1:9422", Scheme: scheme, Part: 1},
		{Address: "10.0.0.2:9422", Scheme: scheme, Part: 2},
		{Address: "10.0.0.3:9422", Scheme: scheme, Part: 0}, // parity, a spare
	}

	p, err := planner.Plan(planner.DefaultConfig(), 0, 3, replicas, stats)
	require.NoError(t, err)
	require.Len(t, p.Waves, 1)
	assert.Len(t, p.Waves[0].Requests, 2) // width(2): any 2 of the 3 columns decode
}

func TestPlan_FallbackWaveUsesRemainingCandidates(t *testing.T) {
	stats := newStats()
	scheme, err := chunktype.RS(3, 2, 0)
	require.NoError(t, err)

	var replicas []planner.Replica
	for i := uint8(0); i < 6; i++ {
		replicas = append(replicas, planner.Replica{
			Address: string(rune('a' + i)),
			Scheme:  scheme,
			Part:    i,
		})
	}

	// width(3), blockCount(4): spans stripe 0 (blocks 0-2) and stripe 1
	// (block 3), so this isn't confined to one stripe and must go
	// through the reconstruction-capable row path rather than direct.
	p, err := planner.Plan(planner.DefaultConfig(), 0, 4, replicas, stats)
	require.NoError(t, err)
	assert.False(t, p.Direct)
	// width(3): 3 primary parts, 3 remaining candidates => one fallback wave.
	require.Len(t, p.Waves, 2)
	assert.Len(t, p.Waves[0].Requests, 3)
	assert.Equal(t, int64(0), p.Waves[0].DelayMs)
	assert.Len(t, p.Waves[1].Requests, 3)
	assert.Greater(t, p.Waves[1].DelayMs, int64(0))
}

func TestPlan_TooFewReplicasFailsWithNoValidCopies(t *testing.T) {
	stats := newStats()
	scheme, err := chunktype.RS(4, 2, 0)
	require.NoError(t, err)

	// Part 5 doesn't hold data column 0, so the direct single-stripe
	// path can't resolve either: it must fall through to the
	// reconstruction path, which needs width(4) replicas and has only 1.
	replicas := []planner.Replica{
		{Address: "a", Scheme: scheme, Part: 5},
	}

	_, err = planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindNoValidCopies, lfserrors.KindOf(err))
}

func TestPlan_PartialStripeReadRequestsOnlyTheOwningDataPart(t *testing.T) {
	stats := newStats()
	scheme, err := chunktype.RS(3, 2, 0)
	require.NoError(t, err)

	var replicas []planner.Replica
	for i := uint8(0); i < 5; i++ {
		replicas = append(replicas, planner.Replica{Address: string(rune('a' + i)), Scheme: scheme, Part: i})
	}

	// blockCount(1) is confined to stripe row 0 and needs only data
	// column 0: the plan should request that one part directly rather
	// than all width(3) parts.
	p, err := planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.NoError(t, err)
	assert.True(t, p.Direct)
	assert.Equal(t, []uint8{0}, p.DataColumns)
	require.Len(t, p.Waves, 1)
	require.Len(t, p.Waves[0].Requests, 1)
	assert.Equal(t, uint8(0), p.Waves[0].Requests[0].Part.Part)
}

func TestPlan_PartialStripeFallsBackToReconstructionWhenOwningPartMissing(t *testing.T) {
	stats := newStats()
	scheme, err := chunktype.RS(3, 2, 0)
	require.NoError(t, err)

	// No replica holds data column 0 (Part 0); only columns 1-4 are
	// available, so the direct path can't serve this read and the
	// planner must fall back to a reconstruction-capable wave.
	var replicas []planner.Replica
	for i := uint8(1); i < 5; i++ {
		replicas = append(replicas, planner.Replica{Address: string(rune('a' + i)), Scheme: scheme, Part: i})
	}

	p, err := planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.NoError(t, err)
	assert.False(t, p.Direct)
	require.Len(t, p.Waves, 1)
	assert.Len(t, p.Waves[0].Requests, 3)
}

func TestPlan_PrefersHigherScoringEndpointForPrimaryWave(t *testing.T) {
	stats := newStats()
	stats.RecordDefect("10.0.0.2:9422")

	replicas := []planner.Replica{
		{Address: "10.0.0.1:9422", Scheme: chunktype.Standard()},
		{Address: "10.0.0.2:9422", Scheme: chunktype.Standard()},
	}

	p, err := planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9422", p.Waves[0].Requests[0].Address)
}

func TestPlan_TieBreaksByAddressWhenScoreAndPendingEqual(t *testing.T) {
	stats := newStats()
	replicas := []planner.Replica{
		{Address: "10.0.0.2:9422", Scheme: chunktype.Standard()},
		{Address: "10.0.0.1:9422", Scheme: chunktype.Standard()},
	}

	p, err := planner.Plan(planner.DefaultConfig(), 0, 1, replicas, stats)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9422", p.Waves[0].Requests[0].Address)
}
