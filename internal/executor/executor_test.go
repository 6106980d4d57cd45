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

package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/executor"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves fixed block contents per (address, partIndex,
// blockNum), and can be told to fail specific addresses to simulate a
// down chunkserver the fallback wave must route around.
type fakeFetcher struct {
	mu      sync.Mutex
	failing map[string]lfserrors.Kind
	data    map[string][]byte // key: address|partIndex|blockNum
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failing: map[string]lfserrors.Kind{}, data: map[string][]byte{}}
}

func (f *fakeFetcher) key(address string, partIndex uint8, blockNum uint32) string {
	return address + "|" + string(rune(partIndex)) + "|" + string(rune(blockNum))
}

func (f *fakeFetcher) set(address string, partIndex uint8, blockNum uint32, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[f.key(address, partIndex, blockNum)] = data
}

func (f *fakeFetcher) fail(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[address] = lfserrors.KindConnect
}

// failCrc makes address fail every read with a chunk-CRC error, the
// kind executor treats as a signal to invalidate the locator entry.
func (f *fakeFetcher) failCrc(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[address] = lfserrors.KindChunkCrc
}

func (f *fakeFetcher) ReadBlock(ctx context.Context, address string, chunkID uint64, version uint32, partType, partIndex uint8, blockNum uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind, failing := f.failing[address]; failing {
		return nil, lfserrors.New("fakeFetcher.ReadBlock", kind, nil)
	}
	data, ok := f.data[f.key(address, partIndex, blockNum)]
	if !ok {
		return nil, lfserrors.New("fakeFetcher.ReadBlock", lfserrors.KindConnect, nil)
	}
	return data, nil
}

// fakeDefectRecorder captures every address RecordDefect was called
// with, for asserting C2 wiring.
type fakeDefectRecorder struct {
	mu        sync.Mutex
	addresses []string
}

func (r *fakeDefectRecorder) RecordDefect(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, address)
}

// fakeInvalidator captures every (inode, chunkIndex) Invalidate was
// called with, for asserting C4 wiring.
type fakeInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (v *fakeInvalidator) Invalidate(inode, chunkIndex uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, string(rune(inode))+"|"+string(rune(chunkIndex)))
}

func TestExecute_StandardSingleReplica(t *testing.T) {
	f := newFakeFetcher()
	f.set("10.0.0.1:9422", 0, 0, []byte("block-zero"))

	plan := planner.Plan{
		FirstBlock: 0,
		BlockCount: 1,
		Waves: []planner.Wave{{
			DelayMs: 0,
			Requests: []planner.Request{
				{Part: chunktype.Standard(), Address: "10.0.0.1:9422", Range: planner.BlockRange{First: 0, Count: 1}},
			},
		}},
	}

	res, err := executor.Execute(context.Background(), executor.Config{
		ChunkID: 1,
		Version: 1,
		Scheme:  chunktype.Standard(),
	}, plan, f)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, []byte("block-zero"), res.Blocks[0])
}

func TestExecute_XorReconstructsMissingDataPart(t *testing.T) {
	scheme, err := chunktype.Xor(2, 0)
	require.NoError(t, err)

	data1 := []byte{0x01, 0x02, 0x03, 0x04}
	data2 := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	parity := append([]byte{}, data1...)
	for i := range parity {
		parity[i] ^= data2[i]
	}

	f := newFakeFetcher()
	f.set("part1", 1, 0, data1)
	f.set("parity", 0, 0, parity)
	f.fail("part2") // part2 (data column 2) is unavailable

	// FirstBlock/BlockCount(2) cover the whole stripe row (width 2), so
	// the assembled result isn't trimmed down from it.
	plan := planner.Plan{
		FirstBlock: 0,
		BlockCount: 2,
		RowFirst:   0,
		RowCount:   1,
		Waves: []planner.Wave{{
			DelayMs: 0,
			Requests: []planner.Request{
				{Part: withPart(scheme, 1), Address: "part1", Range: planner.BlockRange{First: 0, Count: 1}},
				{Part: withPart(scheme, 2), Address: "part2", Range: planner.BlockRange{First: 0, Count: 1}},
			},
		}},
	}

	// part2 fails; executor needs a fallback wave offering parity instead.
	plan.Waves = append(plan.Waves, planner.Wave{
		DelayMs: 1,
		Requests: []planner.Request{
			{Part: withPart(scheme, 0), Address: "parity", Range: planner.BlockRange{First: 0, Count: 1}},
		},
	})

	res, err := executor.Execute(context.Background(), executor.Config{
		ChunkID:      1,
		Version:      1,
		Scheme:       scheme,
		TotalTimeout: 5 * time.Second,
		Clock:        instantClock{},
	}, plan, f)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, data1, res.Blocks[0])
	assert.Equal(t, data2, res.Blocks[1])
}

func TestExecute_RecordsWaveAndReconstructionMetrics(t *testing.T) {
	scheme, err := chunktype.Xor(2, 0)
	require.NoError(t, err)

	data1 := []byte{0x01, 0x02, 0x03, 0x04}
	data2 := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	parity := append([]byte{}, data1...)
	for i := range parity {
		parity[i] ^= data2[i]
	}

	f := newFakeFetcher()
	f.set("part1", 1, 0, data1)
	f.set("parity", 0, 0, parity)
	f.fail("part2")

	plan := planner.Plan{
		FirstBlock: 0,
		BlockCount: 2,
		RowFirst:   0,
		RowCount:   1,
		Waves: []planner.Wave{
			{
				DelayMs: 0,
				Requests: []planner.Request{
					{Part: withPart(scheme, 1), Address: "part1", Range: planner.BlockRange{First: 0, Count: 1}},
					{Part: withPart(scheme, 2), Address: "part2", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
			{
				DelayMs: 1,
				Requests: []planner.Request{
					{Part: withPart(scheme, 0), Address: "parity", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
		},
	}

	metrics := &common.MockMetricHandle{}
	metrics.On("ReadWaveCount", mock.Anything, int64(1), mock.Anything).Return().Twice()
	metrics.On("ReadReconstructionCount", mock.Anything, int64(1), mock.Anything).Return().Once()

	_, err = executor.Execute(context.Background(), executor.Config{
		ChunkID:      1,
		Version:      1,
		Scheme:       scheme,
		TotalTimeout: 5 * time.Second,
		Clock:        instantClock{},
		Metrics:      metrics,
	}, plan, f)
	require.NoError(t, err)
	metrics.AssertExpectations(t)
}

func TestExecute_RecordsDefectOnFailedRequestRegardlessOfKind(t *testing.T) {
	scheme, err := chunktype.Xor(2, 0)
	require.NoError(t, err)

	data1 := []byte{0x01, 0x02, 0x03, 0x04}
	parity := append([]byte{}, data1...)

	f := newFakeFetcher()
	f.set("part1", 1, 0, data1)
	f.set("parity", 0, 0, parity)
	f.fail("part2") // a plain connect failure, not a CRC mismatch

	plan := planner.Plan{
		FirstBlock: 0,
		BlockCount: 2,
		RowFirst:   0,
		RowCount:   1,
		Waves: []planner.Wave{
			{
				DelayMs: 0,
				Requests: []planner.Request{
					{Part: withPart(scheme, 1), Address: "part1", Range: planner.BlockRange{First: 0, Count: 1}},
					{Part: withPart(scheme, 2), Address: "part2", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
			{
				DelayMs: 1,
				Requests: []planner.Request{
					{Part: withPart(scheme, 0), Address: "parity", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
		},
	}

	stats := &fakeDefectRecorder{}
	loc := &fakeInvalidator{}
	_, err = executor.Execute(context.Background(), executor.Config{
		ChunkID:      1,
		Version:      1,
		Scheme:       scheme,
		TotalTimeout: 5 * time.Second,
		Clock:        instantClock{},
		Stats:        stats,
		Locator:      loc,
		Inode:        7,
		ChunkIndex:   3,
	}, plan, f)
	require.NoError(t, err)

	assert.Contains(t, stats.addresses, "part2")
	assert.Empty(t, loc.calls, "a plain connect failure must not invalidate the locator entry")
}

func TestExecute_InvalidatesLocatorOnChunkCrcFailure(t *testing.T) {
	scheme, err := chunktype.Xor(2, 0)
	require.NoError(t, err)

	data1 := []byte{0x01, 0x02, 0x03, 0x04}
	parity := append([]byte{}, data1...)

	f := newFakeFetcher()
	f.set("part1", 1, 0, data1)
	f.set("parity", 0, 0, parity)
	f.failCrc("part2")

	plan := planner.Plan{
		FirstBlock: 0,
		BlockCount: 2,
		RowFirst:   0,
		RowCount:   1,
		Waves: []planner.Wave{
			{
				DelayMs: 0,
				Requests: []planner.Request{
					{Part: withPart(scheme, 1), Address: "part1", Range: planner.BlockRange{First: 0, Count: 1}},
					{Part: withPart(scheme, 2), Address: "part2", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
			{
				DelayMs: 1,
				Requests: []planner.Request{
					{Part: withPart(scheme, 0), Address: "parity", Range: planner.BlockRange{First: 0, Count: 1}},
				},
			},
		},
	}

	stats := &fakeDefectRecorder{}
	loc := &fakeInvalidator{}
	_, err = executor.Execute(context.Background(), executor.Config{
		ChunkID:      1,
		Version:      1,
		Scheme:       scheme,
		TotalTimeout: 5 * time.Second,
		Clock:        instantClock{},
		Stats:        stats,
		Locator:      loc,
		Inode:        7,
		ChunkIndex:   3,
	}, plan, f)
	require.NoError(t, err)

	assert.Contains(t, stats.addresses, "part2")
	require.Len(t, loc.calls, 1)
}

func withPart(scheme chunktype.PartType, part uint8) chunktype.PartType {
	scheme.Part = part
	return scheme
}

// instantClock fires After immediately, so fallback-wave tests don't
// actually sleep.
type instantClock struct{}

func (instantClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}
