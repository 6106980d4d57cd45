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

// Package filehandle is C8's per-open-file state machine (spec.md §4.4):
// None/ReadOnly/WriteOnly/ReadMixed/WriteMixed. A handle that has ever
// written, then reads, must drain its open write pipelines and force a
// fresh locator lookup before the read is allowed to proceed, so it
// never observes its own writes through a stale cached location.
package filehandle

import (
	"context"
	"sync"

	"github.com/lizardfs-go/chunkclient/internal/inoderegistry"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

// State is one node of the file-handle state machine.
type State int

const (
	None State = iota
	ReadOnly
	WriteOnly
	ReadMixed
	WriteMixed
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	case ReadMixed:
		return "ReadMixed"
	case WriteMixed:
		return "WriteMixed"
	default:
		return "Unknown"
	}
}

// Handle tracks one open file's read/write history. It holds only the
// inode number and a pointer to the shared inoderegistry.Registry — never
// a direct reference to a writer.Pipeline or the locator — so an open
// file handle and the write pipelines it may have triggered stay
// independently collectible (spec.md §9).
type Handle struct {
	mu     sync.Mutex
	inode  uint32
	reg    *inoderegistry.Registry
	state  State
	length uint64
}

// New returns a handle for inode in state None.
func New(inode uint32, reg *inoderegistry.Registry) *Handle {
	return &Handle{inode: inode, reg: reg, state: None}
}

// State returns the handle's current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Inode returns the inode this handle was opened against.
func (h *Handle) Inode() uint32 { return h.inode }

// BeginRead transitions the handle into a read-capable state before a
// read proceeds. None/ReadOnly become ReadOnly; ReadMixed is already a
// valid read state and is left alone. WriteOnly/WriteMixed must drain
// every open write pipeline for this inode and invalidate the locator's
// cached locations for it before the read can trust what it sees, per
// spec.md §4.4's "mixed access forces a fresh locator lookup."
func (h *Handle) BeginRead(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case None, ReadOnly:
		h.state = ReadOnly
		return nil
	case ReadMixed:
		return nil
	case WriteOnly, WriteMixed:
		if err := h.reg.FlushOpenPipelines(ctx, h.inode, h.length); err != nil {
			return lfserrors.New("filehandle.BeginRead", lfserrors.KindProtocol, err)
		}
		h.reg.Locator().InvalidateInode(h.inode)
		h.state = ReadMixed
		return nil
	default:
		return lfserrors.New("filehandle.BeginRead", lfserrors.KindProtocol, nil)
	}
}

// BeginWrite transitions the handle into a write-capable state before a
// write proceeds, recording newLength as the file's length after the
// write completes (the length BeginRead's drain reports to the master
// on a later flush). None becomes WriteOnly; any prior read state
// (ReadOnly, ReadMixed) becomes WriteMixed, since the handle has now
// both read and written.
func (h *Handle) BeginWrite(newLength uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.length = newLength
	switch h.state {
	case None:
		h.state = WriteOnly
	case WriteOnly, WriteMixed:
		// already write-capable
	default:
		h.state = WriteMixed
	}
}
