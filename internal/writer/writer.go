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

// Package writer is the per-inode write coordinator (C8): it pins a
// chunk via a lock-id ticket obtained from the master, streams blocks to
// the chain head, resequences acks by writeId, and releases the lock on
// flush. Grounded heavily on mutable_object.go's dirty/localFile/Sync
// state machine (Idle/dirty generalizes to Idle/Streaming/Flushing), with
// its precondition-based Sync generalizing to WRITE_CHUNK_END's lockId
// precondition.
package writer

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
	"github.com/lizardfs-go/chunkclient/internal/wireconst"
)

// InodeInvalidator is the one locator.Locator method a Pipeline needs:
// dropping an inode's cached chunk locations once a flush changes them.
// Pipeline depends on this interface rather than *locator.Locator
// directly so the inode-keyed registry that actually owns the locator
// (internal/inoderegistry) stays the only thing holding a strong
// reference to it; a Pipeline and a locator never own each other.
type InodeInvalidator interface {
	InvalidateInode(inode uint32)
}

// State is one node of the per-(inode,chunkIndex) write pipeline state
// machine (spec.md §4.4).
type State int

const (
	Idle State = iota
	AcquireLock
	Streaming
	Flushing
	ReleaseLock
	Failing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AcquireLock:
		return "AcquireLock"
	case Streaming:
		return "Streaming"
	case Flushing:
		return "Flushing"
	case ReleaseLock:
		return "ReleaseLock"
	case Failing:
		return "Failing"
	default:
		return "Unknown"
	}
}

// BlockWriter is the subset of csclient.Client the write pipeline streams
// blocks through, narrowed for testability.
type BlockWriter interface {
	WriteInit(ctx context.Context, address string, chunkID uint64, version uint32, partType uint8) (bool, error)
	WriteBlock(ctx context.Context, address string, chunkID uint64, version uint32, partType uint8, blockNum, offset uint32, data []byte) error
	WriteEnd(ctx context.Context, address string, chunkID uint64, version uint32) error
}

// Ticket is the WriteChunkTicket spec.md §4 describes: while live, the
// master guarantees no other writer holds it for this chunk.
type Ticket struct {
	ChunkID    uint64
	Version    uint32
	LockID     uint32
	FileLength uint64
	Chain      []masterrpc.ReplicaLocation
}

// Pipeline drives one (inode, chunkIndex)'s write state machine. Its
// methods take the pipeline's mutex, so concurrent Write calls (such as
// the ones WriteBlocks makes) run one at a time.
type Pipeline struct {
	mu sync.Mutex

	inode      uint32
	chunkIndex uint32
	master     masterrpc.Client
	writer     BlockWriter
	loc        InodeInvalidator

	state  State
	ticket Ticket
	nextID uint32
	// pending holds in-flight writeIds in issue order; acks (here,
	// synchronous WriteBlock returns) drain it from the front the way a
	// real async chain would resequence them.
	pending common.Queue[uint32]

	metrics common.MetricHandle
}

// New builds an idle pipeline for (inode, chunkIndex). metrics may be nil,
// in which case WriteMetricHandle measurements are discarded.
func New(inode, chunkIndex uint32, master masterrpc.Client, writer BlockWriter, loc InodeInvalidator, metrics common.MetricHandle) *Pipeline {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &Pipeline{
		inode:      inode,
		chunkIndex: chunkIndex,
		master:     master,
		writer:     writer,
		loc:        loc,
		state:      Idle,
		pending:    common.NewLinkedListQueue[uint32](),
		metrics:    metrics,
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// acquireLocked performs the Idle -> AcquireLock -> Streaming transition:
// it asks the master for a write ticket and opens the chain head's write
// pipeline. Caller holds p.mu.
func (p *Pipeline) acquireLocked(ctx context.Context) error {
	p.state = AcquireLock
	resp, err := p.master.WriteChunk(ctx, masterrpc.WriteChunkRequest{Inode: p.inode, ChunkIndex: p.chunkIndex})
	if err != nil {
		p.state = Failing
		return lfserrors.New("writer.acquireLocked", lfserrors.KindLockID, err)
	}

	p.ticket = Ticket{
		ChunkID: resp.Location.ChunkID,
		Version: resp.Location.Version,
		LockID:  resp.LockID,
		Chain:   resp.Location.Replicas,
	}

	if len(p.ticket.Chain) == 0 {
		p.state = Failing
		return lfserrors.New("writer.acquireLocked", lfserrors.KindNoValidCopies, nil)
	}
	head := p.ticket.Chain[0]

	accepted, err := p.writer.WriteInit(ctx, head.Address, p.ticket.ChunkID, p.ticket.Version, head.PartType)
	if err != nil || !accepted {
		p.state = Failing
		return lfserrors.New("writer.acquireLocked", lfserrors.KindConnect, err)
	}

	p.state = Streaming
	return nil
}

// Write sends one full block to the chain head, acquiring a ticket first
// if the pipeline is Idle. blockNum/offset/data must already satisfy
// spec.md §4.4's alignment contract (offsetInBlock+size <= blockSize);
// the caller (the higher-level write buffer) is responsible for
// zero-filling holes before calling Write.
func (p *Pipeline) Write(ctx context.Context, blockNum, offset uint32, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Idle {
		if err := p.acquireLocked(ctx); err != nil {
			return err
		}
	}
	if p.state != Streaming {
		return lfserrors.New("writer.Write", lfserrors.KindProtocol, nil)
	}

	head := p.ticket.Chain[0]
	writeID := p.nextID
	p.nextID++
	p.pending.Push(writeID)

	start := time.Now()
	if err := p.writer.WriteBlock(ctx, head.Address, p.ticket.ChunkID, p.ticket.Version, head.PartType, blockNum, offset, data); err != nil {
		p.state = Failing
		p.pending.Pop()
		return lfserrors.New("writer.Write", lfserrors.KindConnect, err)
	}
	p.pending.Pop() // ack: this writeID was the oldest in-flight
	p.metrics.WriteBlockCount(ctx, 1, nil)
	p.metrics.WriteAckLatency(ctx, time.Since(start), nil)
	return nil
}

// WriteFromReader drains exactly size bytes of payload from src into buf
// via common.CopyWhole before streaming it as one block; a short src
// fails with a KindEinval error whose cause is io.EOF instead of
// silently writing a truncated block.
func (p *Pipeline) WriteFromReader(ctx context.Context, blockNum, offset uint32, src io.Reader, buf *bytes.Buffer, size int64) error {
	buf.Reset()
	if _, err := common.CopyWhole(buf, src, size); err != nil {
		return lfserrors.New("writer.WriteFromReader", lfserrors.KindEinval, err)
	}
	return p.Write(ctx, blockNum, offset, buf.Bytes())
}

// Flush drains any in-flight writes (here, synchronous per Write call, so
// this is a formality kept for symmetry with an async pipeline), then
// releases the lock via WRITE_CHUNK_END and returns to Idle.
func (p *Pipeline) Flush(ctx context.Context, newLength uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Idle {
		return nil
	}
	if p.state != Streaming {
		return lfserrors.New("writer.Flush", lfserrors.KindProtocol, nil)
	}

	p.state = Flushing
	if !p.pending.IsEmpty() {
		// Real chain acks resequence asynchronously; draining them here
		// would use an errgroup over WriteStatus polls. Synchronous
		// WriteBlock above means pending is always empty by the time
		// Flush runs, but the field stays so a future async pipeline can
		// populate it without changing this contract.
		p.state = Failing
		return lfserrors.New("writer.Flush", lfserrors.KindProtocol, nil)
	}

	p.state = ReleaseLock
	head := p.ticket.Chain[0]
	if err := p.writer.WriteEnd(ctx, head.Address, p.ticket.ChunkID, p.ticket.Version); err != nil {
		p.state = Failing
		return lfserrors.New("writer.Flush", lfserrors.KindConnect, err)
	}

	err := p.master.WriteChunkEnd(ctx, masterrpc.WriteChunkEndRequest{
		Inode:      p.inode,
		ChunkIndex: p.chunkIndex,
		ChunkID:    p.ticket.ChunkID,
		LockID:     p.ticket.LockID,
		NewLength:  newLength,
	})
	if err != nil {
		p.state = Failing
		return lfserrors.New("writer.Flush", lfserrors.KindLockID, err)
	}

	p.loc.InvalidateInode(p.inode)
	p.state = Idle
	p.ticket = Ticket{}
	p.nextID = 0
	return nil
}

// Truncate implements spec.md §4.4's truncate-through-open: it pins the
// inode via the master's two-phase TRUNCATE (begin, then end with the
// returned lockId), re-deriving the chunk's redundancy geometry from
// the begin response to cross-check that the scheme's data parts still
// sum to newLength (spec.md §8 testable property 2) before committing.
// It does not touch p's own chunk/write state; truncate operates on the
// inode as a whole, not on this pipeline's (inode, chunkIndex).
func (p *Pipeline) Truncate(ctx context.Context, newLength uint64) (masterrpc.ChunkLocation, error) {
	resp, err := p.master.TruncateBegin(ctx, masterrpc.TruncateBeginRequest{Inode: p.inode})
	if err != nil {
		return masterrpc.ChunkLocation{}, lfserrors.New("writer.Truncate", lfserrors.KindLockID, err)
	}

	if err := checkPartLengthInvariant(resp.Location, newLength); err != nil {
		return masterrpc.ChunkLocation{}, err
	}

	if err := p.master.TruncateEnd(ctx, masterrpc.TruncateEndRequest{
		Inode:     p.inode,
		LockID:    resp.LockID,
		NewLength: newLength,
	}); err != nil {
		return masterrpc.ChunkLocation{}, lfserrors.New("writer.Truncate", lfserrors.KindLockID, err)
	}

	p.loc.InvalidateInode(p.inode)
	return resp.Location, nil
}

// checkPartLengthInvariant cross-checks loc's redundancy geometry
// against newLength: the data parts' lengths, per
// chunktype.ChunkLengthToPartLength, must sum to exactly newLength.
// Standard chunks have one data part and trivially satisfy this.
func checkPartLengthInvariant(loc masterrpc.ChunkLocation, newLength uint64) error {
	if chunktype.Scheme(loc.Scheme) == chunktype.SchemeStandard {
		return nil
	}

	width := int(loc.Level)
	if chunktype.Scheme(loc.Scheme) == chunktype.SchemeRS {
		width = int(loc.K)
	}

	var sum int64
	for col := 0; col < width; col++ {
		part, err := chunktype.FromWire(loc.Scheme, loc.Level, loc.K, loc.M, dataPartIndex(chunktype.Scheme(loc.Scheme), uint8(col)))
		if err != nil {
			return lfserrors.New("writer.checkPartLengthInvariant", lfserrors.KindEinval, err)
		}
		sum += chunktype.ChunkLengthToPartLength(part, wireconst.BlockSize, int64(newLength))
	}
	if sum != int64(newLength) {
		return lfserrors.New("writer.checkPartLengthInvariant", lfserrors.KindEinval, nil)
	}
	return nil
}

// dataPartIndex maps a 0-based data column to its wire Part value:
// XOR data parts are numbered 1..level (0 is parity), RS data parts
// are numbered 0..k directly.
func dataPartIndex(scheme chunktype.Scheme, col uint8) uint8 {
	if scheme == chunktype.SchemeXor {
		return col + 1
	}
	return col
}

// Abort drops the pipeline's ticket without flushing, transitioning to
// Failing, for use when the caller observed an unrecoverable I/O error
// upstream (spec.md §4.4's Failing state: "drop tickets, mark inode
// dirty, surface I/O error").
func (p *Pipeline) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Failing
	p.ticket = Ticket{}
	p.pending = common.NewLinkedListQueue[uint32]()
}

// Reset returns an aborted pipeline to Idle so a subsequent Write can
// re-acquire a fresh ticket. The caller must have already surfaced the
// failure to its own caller.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Idle
}

// WriteBlocks streams several full blocks from up to maxInFlight
// goroutines at once (via errgroup). Each Write takes the pipeline's
// mutex, so blocks reach the chain head one at a time in whichever order
// the goroutines acquire it; completions are not resequenced, and
// callers needing strict order-of-issue at the wire should use
// maxInFlight=1.
func (p *Pipeline) WriteBlocks(ctx context.Context, blockNums, offsets []uint32, datas [][]byte, maxInFlight int) error {
	if len(blockNums) != len(offsets) || len(blockNums) != len(datas) {
		return lfserrors.New("writer.WriteBlocks", lfserrors.KindEinval, nil)
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	sem := make(chan struct{}, maxInFlight)
	g, gctx := errgroup.WithContext(ctx)
	for i := range blockNums {
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			return p.Write(gctx, blockNums[i], offsets[i], datas[i])
		})
	}
	return g.Wait()
}
