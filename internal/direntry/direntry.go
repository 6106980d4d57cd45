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

// Package direntry caches directory listings keyed by (parent, name) for
// lookup and by (parent, startIndex) batches for readdir (C12). Batches
// are contiguous subsequences of a directory; an end-of-directory marker
// records the first index known to have no further entries so readdir
// past it can short-circuit without another round trip to the master.
// Grounded on gcsproxy/listing_proxy.go's name->node listing cache,
// generalized from GCS object listings to LizardFS directory batches,
// with TTL expiry modeled on ttlcache/ttl_cache_test.go's insert-time
// contract.
package direntry

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

const cacheName = "direntry"

// entry is one cached lookup result, plus its insertion time for TTL
// expiry and an *list.Element back-pointer for O(1) LRU touches.
type entry struct {
	inode     uint32
	attr      masterrpc.Attr
	insertedAt time.Time
	lru       *list.Element
}

type lookupKey struct {
	parent uint32
	name   string
}

// batch is a contiguous run of directory entries starting at startIndex,
// as returned by one readdir round trip to the master.
type batch struct {
	startIndex uint64
	entries    []masterrpc.DirEntry
	endOfDir   bool
	insertedAt time.Time
}

// Cache is the directory-entry + readdir-batch cache. Safe for
// concurrent use.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration

	lookups map[lookupKey]*entry
	lru     *list.List // of *entry, front = most recently used

	byParent map[uint32][]*batch      // readdir batches, insertion order
	eod      map[uint32]uint64        // parent -> first index known empty

	byInode map[uint32][]lookupKey // reverse index for invalidateInode

	stopSweep chan struct{}
	sweepOnce sync.Once

	metrics common.MetricHandle
}

// Config bounds the cache's TTL and sweep cadence.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

// DefaultConfig matches spec.md §4.7's expiration-by-insertion-timestamp
// contract with a conservative sweep cadence.
func DefaultConfig() Config {
	return Config{TTL: 2 * time.Second, SweepInterval: time.Second, SweepBatch: 256}
}

// New builds a cache and starts its background sweep goroutine; call
// Stop to release it. metrics may be nil, in which case CacheMetricHandle
// measurements are discarded.
func New(cfg Config, metrics common.MetricHandle) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultConfig().SweepBatch
	}
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}

	c := &Cache{
		ttl:       cfg.TTL,
		lookups:   make(map[lookupKey]*entry),
		lru:       list.New(),
		byParent:  make(map[uint32][]*batch),
		eod:       make(map[uint32]uint64),
		byInode:   make(map[uint32][]lookupKey),
		stopSweep: make(chan struct{}),
		metrics:   metrics,
	}
	go c.sweepLoop(cfg.SweepInterval, cfg.SweepBatch)
	return c
}

// Stop ends the background sweep goroutine. Idempotent.
func (c *Cache) Stop() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// Lookup returns the cached (inode, attr) for (parent, name), if present
// and not yet past its TTL.
func (c *Cache) Lookup(now time.Time, parent uint32, name string) (uint32, masterrpc.Attr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := lookupKey{parent, name}
	e, ok := c.lookups[key]
	if !ok || now.Sub(e.insertedAt) > c.ttl {
		c.metrics.CacheMissCount(context.Background(), 1, cacheAttrs())
		return 0, masterrpc.Attr{}, false
	}
	c.lru.MoveToFront(e.lru)
	c.metrics.CacheHitCount(context.Background(), 1, cacheAttrs())
	return e.inode, e.attr, true
}

func cacheAttrs() []common.MetricAttr {
	return []common.MetricAttr{{Key: common.CacheName, Value: cacheName}}
}

// SetLookup installs or refreshes a cached (parent, name) -> (inode,
// attr) entry.
func (c *Cache) SetLookup(now time.Time, parent uint32, name string, inode uint32, attr masterrpc.Attr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := lookupKey{parent, name}
	if e, ok := c.lookups[key]; ok {
		e.inode = inode
		e.attr = attr
		e.insertedAt = now
		c.lru.MoveToFront(e.lru)
		return
	}
	e := &entry{inode: inode, attr: attr, insertedAt: now}
	e.lru = c.lru.PushFront(key)
	c.lookups[key] = e
	c.byInode[inode] = append(c.byInode[inode], key)
}

// FeedBatch records one contiguous readdir batch for parent, replacing
// any prior batch with the same startIndex.
func (c *Cache) FeedBatch(now time.Time, parent uint32, startIndex uint64, entries []masterrpc.DirEntry, endOfDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := &batch{startIndex: startIndex, entries: entries, endOfDir: endOfDir, insertedAt: now}
	batches := c.byParent[parent]
	replaced := false
	for i, existing := range batches {
		if existing.startIndex == startIndex {
			batches[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		batches = append(batches, b)
	}
	c.byParent[parent] = batches

	if endOfDir {
		end := startIndex + uint64(len(entries))
		if prev, ok := c.eod[parent]; !ok || end < prev {
			c.eod[parent] = end
		}
	}
}

// ReadDir returns the cached batch starting at startIndex for parent, if
// present and unexpired, along with whether startIndex is known to be at
// or past the end of the directory (in which case entries is empty and
// endOfDir is true even without a matching batch).
func (c *Cache) ReadDir(now time.Time, parent uint32, startIndex uint64) ([]masterrpc.DirEntry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if end, ok := c.eod[parent]; ok && startIndex >= end {
		c.metrics.CacheHitCount(context.Background(), 1, cacheAttrs())
		return nil, true, true
	}

	for _, b := range c.byParent[parent] {
		if b.startIndex != startIndex {
			continue
		}
		if now.Sub(b.insertedAt) > c.ttl {
			c.metrics.CacheMissCount(context.Background(), 1, cacheAttrs())
			return nil, false, false
		}
		c.metrics.CacheHitCount(context.Background(), 1, cacheAttrs())
		return b.entries, b.endOfDir, true
	}
	c.metrics.CacheMissCount(context.Background(), 1, cacheAttrs())
	return nil, false, false
}

// InvalidateParent drops every cached lookup and readdir batch for
// parent, for use after a mutation (mkdir/rmdir/rename/unlink) under it.
func (c *Cache) InvalidateParent(parent uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.byParent, parent)
	delete(c.eod, parent)
	for key, e := range c.lookups {
		if key.parent == parent {
			c.removeLookupLocked(key, e)
		}
	}
}

// InvalidateInode drops every cached lookup entry that resolves to
// inode, for use after setattr/chmod/chown changes its attributes.
func (c *Cache) InvalidateInode(inode uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.byInode[inode] {
		if e, ok := c.lookups[key]; ok {
			c.removeLookupLocked(key, e)
		}
	}
	delete(c.byInode, inode)
}

func (c *Cache) removeLookupLocked(key lookupKey, e *entry) {
	c.lru.Remove(e.lru)
	delete(c.lookups, key)
}

// sweepLoop periodically removes expired lookup entries in fixed-size
// batches, bounding the work done per tick (spec.md §4.7).
func (c *Cache) sweepLoop(interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case now := <-ticker.C:
			c.sweepOnceAt(now, batchSize)
		}
	}
}

func (c *Cache) sweepOnceAt(now time.Time, batchSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for e := c.lru.Back(); e != nil && removed < batchSize; {
		key := e.Value.(lookupKey)
		prev := e.Prev()
		entryVal, ok := c.lookups[key]
		if ok && now.Sub(entryVal.insertedAt) > c.ttl {
			c.removeLookupLocked(key, entryVal)
			removed++
		}
		e = prev
	}
	if removed > 0 {
		c.metrics.CacheEvictionCount(context.Background(), int64(removed), cacheAttrs())
	}
}
