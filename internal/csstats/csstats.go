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

// Package csstats is the chunkserver-stats registry (C2): per-endpoint
// pending-op counters and a decaying defect flag, reduced to a score the
// read planner (C5) uses to break ties between otherwise-equivalent
// parts.
package csstats

import (
	"sync"

	"github.com/lizardfs-go/chunkclient/clock"
)

// entry holds one endpoint's mutable counters. Guarded by Registry.mu.
type entry struct {
	pendingReads  int
	pendingWrites int
	defects       int
	defectUntil   int64 // unix nanos; stats score is penalized until this deadline
}

// Registry is a process-wide (but explicitly constructed, per spec.md §9)
// table of per-chunkserver-endpoint counters.
type Registry struct {
	mu            sync.Mutex
	entries       map[string]*entry
	clock         clock.Clock
	defectDecay   int64 // nanoseconds a defect penalizes score before decaying
}

// New builds an empty registry. defectDecay bounds how long a defect
// continues to penalize an endpoint's score after being recorded.
func New(clk clock.Clock, defectDecay int64) *Registry {
	return &Registry{
		entries:     make(map[string]*entry),
		clock:       clk,
		defectDecay: defectDecay,
	}
}

func (r *Registry) entryFor(address string) *entry {
	e, ok := r.entries[address]
	if !ok {
		e = &entry{}
		r.entries[address] = e
	}
	return e
}

// Score returns the planner tie-break score for address: 1 if the
// endpoint has no unexpired defects, else 1/(defects+1).
func (r *Registry) Score(address string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[address]
	if !ok {
		return 1
	}
	if e.defects == 0 || r.clock.Now().UnixNano() >= e.defectUntil {
		return 1
	}
	return 1 / float64(e.defects+1)
}

// PendingOps returns the current pending read+write count for address,
// the secondary tie-break the planner uses after score.
func (r *Registry) PendingOps(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[address]
	if !ok {
		return 0
	}
	return e.pendingReads + e.pendingWrites
}

// RecordDefect marks address as defective, penalizing its score until
// defectDecay elapses from now.
func (r *Registry) RecordDefect(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entryFor(address)
	e.defects++
	e.defectUntil = r.clock.Now().UnixNano() + r.defectDecay
}

// AllPendingDefective marks every endpoint with a nonzero pending op
// count as defective, used when a connection breaks mid-request and
// every in-flight op on it must be treated as suspect.
func (r *Registry) AllPendingDefective() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now().UnixNano()
	for _, e := range r.entries {
		if e.pendingReads+e.pendingWrites > 0 {
			e.defects++
			e.defectUntil = now + r.defectDecay
		}
	}
}

// OpHandle is returned by BeginRead/BeginWrite; Release decrements the
// matching counter exactly once, whether it is called explicitly or (in
// the caller's defer) after an early return.
type OpHandle struct {
	release func()
	done    bool
}

// Release is idempotent so callers can safely `defer h.Release()` after
// also calling it on a success path.
func (h *OpHandle) Release() {
	if h.done {
		return
	}
	h.done = true
	h.release()
}

// BeginRead increments address's pending-read counter and returns a
// handle the caller must Release (typically via defer) when the read
// completes or fails.
func (r *Registry) BeginRead(address string) *OpHandle {
	r.mu.Lock()
	e := r.entryFor(address)
	e.pendingReads++
	r.mu.Unlock()

	return &OpHandle{release: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if e.pendingReads > 0 {
			e.pendingReads--
		}
	}}
}

// BeginWrite is BeginRead's write-path counterpart.
func (r *Registry) BeginWrite(address string) *OpHandle {
	r.mu.Lock()
	e := r.entryFor(address)
	e.pendingWrites++
	r.mu.Unlock()

	return &OpHandle{release: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if e.pendingWrites > 0 {
			e.pendingWrites--
		}
	}}
}
