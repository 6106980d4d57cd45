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

// Package engine assembles the chunk client's domain components into
// the two paths spec.md §2 describes: a read path (C4 locator -> C11
// iolimit -> C5 planner -> C6 executor, with C9 readahead feeding back
// into later plans) and a write path (C8 write pipeline -> C7
// chunkserver client -> release). Nothing in here does I/O of its own;
// it only wires the narrower packages together the way a caller
// embedding this module would.
package engine

import (
	"context"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/csstats"
	"github.com/lizardfs-go/chunkclient/internal/executor"
	"github.com/lizardfs-go/chunkclient/internal/filehandle"
	"github.com/lizardfs-go/chunkclient/internal/inoderegistry"
	"github.com/lizardfs-go/chunkclient/internal/iolimit"
	"github.com/lizardfs-go/chunkclient/internal/locator"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
	"github.com/lizardfs-go/chunkclient/internal/planner"
	"github.com/lizardfs-go/chunkclient/internal/readahead"
	"github.com/lizardfs-go/chunkclient/internal/wireconst"
	"github.com/lizardfs-go/chunkclient/internal/writer"
)

// BlockClient is the chunkserver surface the read and write paths
// share: C6 fetches blocks through it (BlockFetcher), C8 streams them
// through it (BlockWriter). *csclient.Client satisfies it directly.
type BlockClient interface {
	executor.BlockFetcher
	writer.BlockWriter
}

// Config bounds the engine's read path behavior.
type Config struct {
	PlannerConfig planner.Config
	ReadTimeout   time.Duration
	IOLimitGroup  string
	SessionID     uint32
}

// DefaultConfig mirrors cfg.Config's read/io-limit defaults.
func DefaultConfig() Config {
	return Config{
		PlannerConfig: planner.DefaultConfig(),
		ReadTimeout:   30 * time.Second,
		IOLimitGroup:  "default",
	}
}

// Engine holds the shared state every open file's read and write paths
// draw on: the locator cache (C4), endpoint scoring (C2), the
// chunkserver client (C7), the bandwidth limiter (C11), and the
// inode-keyed write-pipeline registry (C8's owner, spec.md §9).
type Engine struct {
	cfg     Config
	master  masterrpc.Client
	loc     *locator.Locator
	stats   *csstats.Registry
	cs      BlockClient
	limiter *iolimit.LimiterProxy
	reg     *inoderegistry.Registry
	metrics common.MetricHandle
}

// New builds an Engine. limiter may be nil to disable bandwidth
// throttling entirely (e.g. a test harness with no io-limit groups
// configured).
func New(cfg Config, master masterrpc.Client, cs BlockClient, stats *csstats.Registry, limiter *iolimit.LimiterProxy, metrics common.MetricHandle) *Engine {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	if cfg.IOLimitGroup == "" {
		cfg.IOLimitGroup = "default"
	}
	loc := locator.New(master)
	return &Engine{
		cfg:     cfg,
		master:  master,
		loc:     loc,
		stats:   stats,
		cs:      cs,
		limiter: limiter,
		reg:     inoderegistry.New(loc, master, cs, metrics),
		metrics: metrics,
	}
}

// Locator returns the shared locator cache.
func (e *Engine) Locator() *locator.Locator { return e.loc }

// Registry returns the shared inode-keyed write-pipeline owner.
func (e *Engine) Registry() *inoderegistry.Registry { return e.reg }

// OpenFile returns a fresh per-open-instance state machine for inode,
// backed by this engine's shared registry (spec.md §4.4/§9: a handle
// holds only an index into the registry, never a pipeline directly).
func (e *Engine) OpenFile(inode uint32) *filehandle.Handle {
	return filehandle.New(inode, e.reg)
}

// NewReader returns a read path for inode with its own readahead
// adviser (C9), so sequential reads through the same Reader widen
// their prefetch window across calls.
func (e *Engine) NewReader(inode uint32, racfg readahead.Config) *Reader {
	return &Reader{e: e, inode: inode, adv: readahead.New(racfg)}
}

// NewWriter returns a write path driving h's state transitions and
// streaming blocks through the engine's shared pipeline registry.
func (e *Engine) NewWriter(h *filehandle.Handle) *Writer {
	return &Writer{e: e, h: h}
}

// Reader is one open file's read path (C4 -> C11 -> C5 -> C6, fed by
// C9). Not safe for concurrent ReadAt calls on the same Reader; callers
// serialize per file handle the way the write side does.
type Reader struct {
	e     *Engine
	inode uint32
	adv   *readahead.Adviser
}

// ReadAt reads length bytes of the reader's inode starting at the
// chunk-relative-or-not offset, confined to a single chunk: a caller
// whose range spans a chunk boundary issues one ReadAt per chunk. It
// resolves the chunk's location (C4), reserves bandwidth (C11), plans
// the read (C5), executes it (C6, with C2 defect recording and C4
// invalidation wired for failed requests), and feeds the readahead
// adviser (C9) so later sequential reads see a wider window.
func (r *Reader) ReadAt(ctx context.Context, now time.Time, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	chunkIndex := wireconst.ChunkIndex(offset)
	chunkOffset := wireconst.OffsetWithinChunk(offset)

	loc, err := r.e.loc.Locate(ctx, r.inode, chunkIndex)
	if err != nil {
		return nil, err
	}
	if loc.IsEmpty() {
		return make([]byte, length), nil
	}

	if r.e.limiter != nil {
		if _, err := r.e.limiter.Attempt(ctx, now, r.e.cfg.IOLimitGroup, r.e.cfg.SessionID, float64(length), time.Time{}); err != nil {
			return nil, err
		}
	}

	scheme, err := chunktype.FromWire(loc.Scheme, loc.Level, loc.K, loc.M, 0)
	if err != nil {
		return nil, err
	}
	replicas := planner.FromLocations(scheme, loc.Replicas)

	firstBlock := uint32(chunkOffset / wireconst.BlockSize)
	lastBlock := uint32((chunkOffset + int64(length) - 1) / wireconst.BlockSize)
	blockCount := lastBlock - firstBlock + 1

	plan, err := planner.Plan(r.e.cfg.PlannerConfig, firstBlock, blockCount, replicas, r.e.stats)
	if err != nil {
		return nil, err
	}

	result, err := executor.Execute(ctx, executor.Config{
		ChunkID:      loc.ChunkID,
		Version:      loc.Version,
		Scheme:       scheme,
		TotalTimeout: r.e.cfg.ReadTimeout,
		Metrics:      r.e.metrics,
		Stats:        r.e.stats,
		Locator:      r.e.loc,
		Inode:        r.inode,
		ChunkIndex:   chunkIndex,
	}, plan, r.e.cs)
	if err != nil {
		return nil, err
	}

	r.adv.Feed(now, offset, int64(length))
	return trimBlocks(result.Blocks, chunkOffset, length), nil
}

// Window reports the reader's current readahead window, in bytes.
func (r *Reader) Window() int64 { return r.adv.Window() }

// trimBlocks concatenates blocks (one wireconst.BlockSize-aligned block
// per entry, first block at the position chunkOffset falls within) and
// narrows the result down to exactly the [chunkOffset, chunkOffset+
// length) byte range.
func trimBlocks(blocks [][]byte, chunkOffset int64, length int) []byte {
	out := make([]byte, 0, len(blocks)*wireconst.BlockSize)
	for _, b := range blocks {
		out = append(out, b...)
	}
	lo := int(chunkOffset % wireconst.BlockSize)
	if lo > len(out) {
		lo = len(out)
	}
	hi := lo + length
	if hi > len(out) {
		hi = len(out)
	}
	return out[lo:hi]
}

// Writer is one open file's write path (C8 -> C7 -> release).
type Writer struct {
	e *Engine
	h *filehandle.Handle
}

// WriteAt writes data at offset, confined to a single chunk, recording
// newLength as the file's length after this write (what a later Flush
// reports to the master). It transitions the backing file handle into
// a write-capable state first.
func (w *Writer) WriteAt(ctx context.Context, offset int64, data []byte, newLength uint64) error {
	w.h.BeginWrite(newLength)

	chunkIndex := wireconst.ChunkIndex(offset)
	chunkOffset := wireconst.OffsetWithinChunk(offset)
	blockNum := uint32(chunkOffset / wireconst.BlockSize)
	blockOffset := uint32(chunkOffset % wireconst.BlockSize)

	p := w.e.reg.PipelineFor(w.h.Inode(), chunkIndex)
	return p.Write(ctx, blockNum, blockOffset, data)
}

// Flush drains every chunk pipeline this writer's file handle has open
// and releases their locks, reporting newLength as the file's final
// length.
func (w *Writer) Flush(ctx context.Context, newLength uint64) error {
	return w.e.reg.FlushOpenPipelines(ctx, w.h.Inode(), newLength)
}

// Truncate pins the writer's inode via the master's two-phase TRUNCATE
// and commits newLength, using chunkIndex's pipeline purely as a handle
// onto the shared master/locator wiring (truncate operates on the whole
// inode, not on one chunk).
func (w *Writer) Truncate(ctx context.Context, chunkIndex uint32, newLength uint64) (masterrpc.ChunkLocation, error) {
	p := w.e.reg.PipelineFor(w.h.Inode(), chunkIndex)
	return p.Truncate(ctx, newLength)
}
