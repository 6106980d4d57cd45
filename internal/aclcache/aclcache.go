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

// Package aclcache caches per-(inode, uid, gid, kind) ACL lookups (C13).
// The underlying ACL records are interned: entries with identical
// contents share one refcounted record, and replacing a cached entry
// decrements the old record's refcount, dropping it once no cache entry
// references it. Grounded on gcsproxy/mutable_content.go's
// replace-then-release buffering pattern (WriteAt/Truncate install a new
// backing store and let the old one go), generalized here from "one
// buffer, swapped" to "one refcounted record, shared across entries."
package aclcache

import (
	"context"
	"sync"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

const cacheName = "aclcache"

// Kind distinguishes an access ACL from a default (inherited-on-create)
// ACL, since POSIX ACLs keep the two separate per directory.
type Kind uint8

const (
	KindAccess Kind = iota
	KindDefault
)

type key struct {
	inode uint32
	uid   uint32
	gid   uint32
	kind  Kind
}

// aclKey is the interning key: two ACLs with identical entries share one
// record regardless of which inode/uid/gid looked them up.
type aclKey string

func keyFor(entries []masterrpc.AclEntry) aclKey {
	b := make([]byte, 0, len(entries)*6)
	for _, e := range entries {
		b = append(b, e.Tag, byte(e.ID), byte(e.ID>>8), byte(e.ID>>16), byte(e.ID>>24), e.Perm)
	}
	return aclKey(b)
}

type record struct {
	entries []masterrpc.AclEntry
	refs    int
}

// Cache is the interned ACL cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	records  map[aclKey]*record
	byLookup map[key]aclKey // empty aclKey means a cached "no ACL" (None)

	metrics common.MetricHandle
}

// New builds an empty ACL cache. metrics may be nil, in which case
// CacheMetricHandle measurements are discarded.
func New(metrics common.MetricHandle) *Cache {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &Cache{
		records:  make(map[aclKey]*record),
		byLookup: make(map[key]aclKey),
		metrics:  metrics,
	}
}

func aclCacheAttrs() []common.MetricAttr {
	return []common.MetricAttr{{Key: common.CacheName, Value: cacheName}}
}

// Lookup returns the cached ACL for (inode, uid, gid, kind), and whether
// the entry is cached at all (as opposed to "cached as absent," which
// returns true with a nil slice).
func (c *Cache) Lookup(inode, uid, gid uint32, kind Kind) ([]masterrpc.AclEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{inode, uid, gid, kind}
	ak, ok := c.byLookup[k]
	if !ok {
		c.metrics.CacheMissCount(context.Background(), 1, aclCacheAttrs())
		return nil, false
	}
	c.metrics.CacheHitCount(context.Background(), 1, aclCacheAttrs())
	if ak == "" {
		return nil, true // cached as explicitly absent
	}
	return c.records[ak].entries, true
}

// Set installs entries (nil for "no ACL") as the cached answer for
// (inode, uid, gid, kind), interning the record and releasing whatever
// record the slot previously pointed at.
func (c *Cache) Set(inode, uid, gid uint32, kind Kind, entries []masterrpc.AclEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{inode, uid, gid, kind}
	c.releaseLocked(k)

	if len(entries) == 0 {
		c.byLookup[k] = ""
		return
	}

	ak := keyFor(entries)
	rec, ok := c.records[ak]
	if !ok {
		rec = &record{entries: append([]masterrpc.AclEntry{}, entries...)}
		c.records[ak] = rec
	}
	rec.refs++
	c.byLookup[k] = ak
}

// releaseLocked drops k's current record reference, if any, decrementing
// and possibly evicting the interned record. Caller holds c.mu.
func (c *Cache) releaseLocked(k key) {
	ak, ok := c.byLookup[k]
	if !ok {
		return
	}
	delete(c.byLookup, k)
	if ak == "" {
		return
	}
	if rec, ok := c.records[ak]; ok {
		rec.refs--
		if rec.refs <= 0 {
			delete(c.records, ak)
			c.metrics.CacheEvictionCount(context.Background(), 1, aclCacheAttrs())
		}
	}
}

// InvalidateInode drops every cached ACL lookup for inode across all
// (uid, gid, kind) combinations, releasing their record references.
func (c *Cache) InvalidateInode(inode uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.byLookup {
		if k.inode == inode {
			c.releaseLocked(k)
		}
	}
}

// SetMode recomputes the ACL mask entry from a chmod, per spec.md §4.8:
// a mode change must recompute the access ACL's mask (if one is cached)
// and replace the entry atomically under the same lock a concurrent
// Lookup would take. isDir is accepted for parity with the master's
// setMode contract but does not change the mask-recompute rule itself.
func (c *Cache) SetMode(inode uint32, mode uint16, isDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{inode: inode, kind: KindAccess}
	for existing := range c.byLookup {
		if existing.inode != inode || existing.kind != KindAccess {
			continue
		}
		k = existing
		ak := c.byLookup[k]
		if ak == "" {
			continue
		}
		rec := c.records[ak]
		recomputed := recomputeMask(rec.entries, mode)
		c.releaseLocked(k)
		newAk := keyFor(recomputed)
		newRec, ok := c.records[newAk]
		if !ok {
			newRec = &record{entries: recomputed}
			c.records[newAk] = newRec
		}
		newRec.refs++
		c.byLookup[k] = newAk
	}
}

// maskTag is the ACL_MASK tag value in the POSIX ACL entry encoding.
const maskTag = 4

// recomputeMask derives a new ACL_MASK permission bits from mode's group
// permission bits, the POSIX.1e convention this module follows.
func recomputeMask(entries []masterrpc.AclEntry, mode uint16) []masterrpc.AclEntry {
	out := make([]masterrpc.AclEntry, len(entries))
	copy(out, entries)
	groupBits := uint8((mode >> 3) & 0x7)
	for i := range out {
		if out[i].Tag == maskTag {
			out[i].Perm = groupBits
		}
	}
	return out
}
