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

package direntry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/direntry"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

func newCache(ttl time.Duration) *direntry.Cache {
	return direntry.New(direntry.Config{TTL: ttl, SweepInterval: time.Hour, SweepBatch: 64}, nil)
}

func TestCache_SetLookupThenLookupHits(t *testing.T) {
	c := newCache(time.Minute)
	defer c.Stop()
	now := time.Unix(0, 0)

	c.SetLookup(now, 1, "foo", 42, masterrpc.Attr{Inode: 42, Size: 100})

	inode, attr, ok := c.Lookup(now, 1, "foo")
	require.True(t, ok)
	assert.Equal(t, uint32(42), inode)
	assert.Equal(t, uint64(100), attr.Size)
}

func TestCache_LookupMissesAfterTTL(t *testing.T) {
	c := newCache(time.Second)
	defer c.Stop()
	now := time.Unix(0, 0)

	c.SetLookup(now, 1, "foo", 42, masterrpc.Attr{})
	_, _, ok := c.Lookup(now.Add(2*time.Second), 1, "foo")
	assert.False(t, ok)
}

func TestCache_InvalidateParentDropsAllItsLookups(t *testing.T) {
	c := newCache(time.Minute)
	defer c.Stop()
	now := time.Unix(0, 0)

	c.SetLookup(now, 1, "a", 10, masterrpc.Attr{})
	c.SetLookup(now, 1, "b", 11, masterrpc.Attr{})
	c.SetLookup(now, 2, "c", 12, masterrpc.Attr{})

	c.InvalidateParent(1)

	_, _, ok := c.Lookup(now, 1, "a")
	assert.False(t, ok)
	_, _, ok = c.Lookup(now, 1, "b")
	assert.False(t, ok)
	_, _, ok = c.Lookup(now, 2, "c")
	assert.True(t, ok)
}

func TestCache_InvalidateInodeDropsOnlyThatInodesLookups(t *testing.T) {
	c := newCache(time.Minute)
	defer c.Stop()
	now := time.Unix(0, 0)

	c.SetLookup(now, 1, "a", 10, masterrpc.Attr{})
	c.SetLookup(now, 2, "b", 10, masterrpc.Attr{}) // same inode, hardlinked name
	c.SetLookup(now, 1, "c", 11, masterrpc.Attr{})

	c.InvalidateInode(10)

	_, _, ok := c.Lookup(now, 1, "a")
	assert.False(t, ok)
	_, _, ok = c.Lookup(now, 2, "b")
	assert.False(t, ok)
	_, _, ok = c.Lookup(now, 1, "c")
	assert.True(t, ok)
}

func TestCache_FeedBatchThenReadDirHits(t *testing.T) {
	c := newCache(time.Minute)
	defer c.Stop()
	now := time.Unix(0, 0)

	entries := []masterrpc.DirEntry{{Inode: 1, Name: "x"}, {Inode: 2, Name: "y"}}
	c.FeedBatch(now, 5, 0, entries, false)

	got, eod, ok := c.ReadDir(now, 5, 0)
	require.True(t, ok)
	assert.False(t, eod)
	assert.Equal(t, entries, got)
}

func TestCache_ReadDirPastEndOfDirectoryShortCircuits(t *testing.T) {
	c := newCache(time.Minute)
	defer c.Stop()
	now := time.Unix(0, 0)

	entries := []masterrpc.DirEntry{{Inode: 1, Name: "x"}}
	c.FeedBatch(now, 5, 0, entries, true) // end of dir at index 1

	_, eod, ok := c.ReadDir(now, 5, 1)
	require.True(t, ok)
	assert.True(t, eod)
}

func TestCache_ReadDirMissesAfterTTL(t *testing.T) {
	c := newCache(time.Second)
	defer c.Stop()
	now := time.Unix(0, 0)

	c.FeedBatch(now, 5, 0, []masterrpc.DirEntry{{Inode: 1, Name: "x"}}, false)
	_, _, ok := c.ReadDir(now.Add(2*time.Second), 5, 0)
	assert.False(t, ok)
}

func TestCache_RecordsHitAndMissMetrics(t *testing.T) {
	metrics := &common.MockMetricHandle{}
	metrics.On("CacheMissCount", mock.Anything, int64(1), mock.Anything).Return().Once()
	metrics.On("CacheHitCount", mock.Anything, int64(1), mock.Anything).Return().Once()

	c := direntry.New(direntry.Config{TTL: time.Minute, SweepInterval: time.Hour, SweepBatch: 64}, metrics)
	defer c.Stop()
	now := time.Unix(0, 0)

	_, _, ok := c.Lookup(now, 1, "missing")
	require.False(t, ok)

	c.SetLookup(now, 1, "foo", 42, masterrpc.Attr{Inode: 42})
	_, _, ok = c.Lookup(now, 1, "foo")
	require.True(t, ok)

	metrics.AssertExpectations(t)
}
