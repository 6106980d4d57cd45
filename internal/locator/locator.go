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

// Package locator resolves (inode, chunkIndex) to a ChunkLocation and
// caches the result until explicitly invalidated or superseded by a
// fresher master reply — the clobbered()/generation-precondition
// coherence pattern in gcsproxy/mutable_object.go generalized from
// object-generation staleness to chunk-version staleness.
package locator

import (
	"context"
	"sync"

	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

type key struct {
	inode      uint32
	chunkIndex uint32
}

// ChunkLocation is the resolved answer for one (inode, chunkIndex). An
// empty Replicas slice represents an empty chunk, whatever FileLength is:
// read-as-zeroes, per spec.md §3/§4.1.
type ChunkLocation struct {
	ChunkID    uint64
	Version    uint32
	Scheme     uint8
	Level      uint8
	K          uint8
	M          uint8
	FileLength uint64
	Replicas   []masterrpc.ReplicaLocation
}

func (l ChunkLocation) empty() bool { return len(l.Replicas) == 0 }

// Locator caches chunk locations and serves master READ_CHUNK lookups on
// miss.
type Locator struct {
	mu     sync.RWMutex
	cache  map[key]ChunkLocation
	master masterrpc.Client
}

func New(master masterrpc.Client) *Locator {
	return &Locator{
		cache:  make(map[key]ChunkLocation),
		master: master,
	}
}

// Locate returns the cached location for (inode, chunkIndex), resolving
// it via the master on a miss.
func (l *Locator) Locate(ctx context.Context, inode, chunkIndex uint32) (ChunkLocation, error) {
	k := key{inode, chunkIndex}

	l.mu.RLock()
	if loc, ok := l.cache[k]; ok {
		l.mu.RUnlock()
		return loc, nil
	}
	l.mu.RUnlock()

	resp, err := l.master.ReadChunk(ctx, masterrpc.ReadChunkRequest{Inode: inode, ChunkIndex: chunkIndex})
	if err != nil {
		return ChunkLocation{}, lfserrors.New("locator.Locate", lfserrors.KindConnect, err)
	}

	loc := ChunkLocation{
		ChunkID:    resp.Location.ChunkID,
		Version:    resp.Location.Version,
		Scheme:     resp.Location.Scheme,
		Level:      resp.Location.Level,
		K:          resp.Location.K,
		M:          resp.Location.M,
		FileLength: resp.Length,
		Replicas:   resp.Location.Replicas,
	}

	l.mu.Lock()
	l.cache[k] = loc
	l.mu.Unlock()
	return loc, nil
}

// Invalidate drops the cached entry for (inode, chunkIndex), if any. The
// next Locate call triggers exactly one master RPC (spec.md §8 property
// 3).
func (l *Locator) Invalidate(inode, chunkIndex uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, key{inode, chunkIndex})
}

// InvalidateInode drops every cached chunk of inode, e.g. after a write
// completes and shifts the chunk's version for every subsequent chunk
// index sharing that write (spec.md §4.4's "ReadMixed requires a fresh
// locator lookup").
func (l *Locator) InvalidateInode(inode uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.cache {
		if k.inode == inode {
			delete(l.cache, k)
		}
	}
}

// ObserveStaleReply handles a CRC mismatch or a chunk version lower than
// cached: it invalidates the entry and re-resolves via the master so the
// caller gets a corrected location immediately rather than racing its own
// next Locate call against a concurrent writer.
func (l *Locator) ObserveStaleReply(ctx context.Context, inode, chunkIndex uint32) (ChunkLocation, error) {
	l.Invalidate(inode, chunkIndex)
	return l.Locate(ctx, inode, chunkIndex)
}

// Set installs loc directly in the cache, used by the write coordinator
// (C8) to seed the locator with a fresher location it already obtained
// via WRITE_CHUNK, avoiding a redundant READ_CHUNK round trip.
func (l *Locator) Set(inode, chunkIndex uint32, loc ChunkLocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key{inode, chunkIndex}] = loc
}

// IsEmpty reports whether loc represents an empty chunk (read-as-zeroes).
func (loc ChunkLocation) IsEmpty() bool { return loc.empty() }
