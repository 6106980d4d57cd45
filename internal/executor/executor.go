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

// Package executor runs a planner.Plan against real chunkservers (C6):
// it fires each wave's requests concurrently, tracks which stripe
// columns have been delivered, and reconstructs any still-missing
// columns via C10 once a stripe has enough to decode. Grounded on
// mutable_object.go's ReadAt/local-file assembly pattern for
// aligned-buffer placement and the per-piece completion tracking shape
// used for download-chunk orchestration elsewhere in the corpus.
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/erasure"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/planner"
)

// BlockFetcher is the subset of csclient.Client the executor needs,
// narrowed to an interface so tests can substitute a fake.
type BlockFetcher interface {
	ReadBlock(ctx context.Context, address string, chunkID uint64, version uint32, partType, partIndex uint8, blockNum uint32) ([]byte, error)
}

// DefectRecorder marks an endpoint defective after a failed request
// (C2), so later planner.Plan calls deprioritize it.
type DefectRecorder interface {
	RecordDefect(address string)
}

// LocationInvalidator drops a stale locator entry (C4) so the next
// lookup re-resolves against the master instead of reusing a location
// that just proved wrong.
type LocationInvalidator interface {
	Invalidate(inode, chunkIndex uint32)
}

// Clock abstracts time.After for wave-delay scheduling in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Result is the outcome of executing a plan: one byte slice per block in
// [FirstBlock, FirstBlock+BlockCount), reassembled from whichever parts
// were actually delivered.
type Result struct {
	Blocks [][]byte
}

// Config carries the chunk's identity and redundancy scheme, needed to
// wire-encode requests and to pick a C10 codec for reconstruction.
type Config struct {
	ChunkID      uint64
	Version      uint32
	Scheme       chunktype.PartType
	TotalTimeout time.Duration
	Clock        Clock

	// Metrics receives ReadMetricHandle samples for the waves this
	// Execute call fires and any reconstruction it performs. Nil
	// discards every measurement.
	Metrics common.MetricHandle

	// Stats, if non-nil, is notified via RecordDefect whenever a
	// request fails, regardless of error kind (§4.3).
	Stats DefectRecorder

	// Locator, Inode, and ChunkIndex: when a request fails with
	// lfserrors.KindChunkCrc — the replica served stale or corrupt
	// data — Locator.Invalidate(Inode, ChunkIndex) is called so the
	// next lookup re-resolves the chunk's location instead of reusing
	// the entry that just proved wrong (§4.1, §4.3). Locator is
	// optional; Inode/ChunkIndex are ignored when it is nil.
	Locator    LocationInvalidator
	Inode      uint32
	ChunkIndex uint32
}

// Execute runs plan's waves against fetcher, firing fallback waves on
// schedule if earlier waves have not yet delivered enough columns to
// decode every stripe in range, and returns the assembled blocks.
func Execute(ctx context.Context, cfg Config, plan planner.Plan, fetcher BlockFetcher) (Result, error) {
	if plan.BlockCount == 0 {
		return Result{}, nil
	}

	clk := cfg.Clock
	if clk == nil {
		clk = realClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.TotalTimeout))
	defer cancel()

	width := cfg.Scheme.Width()
	columns := make(map[uint8][][]byte) // part index -> per-block data, nil until delivered
	delivered := make(map[uint8]bool)

	for _, wave := range plan.Waves {
		if wave.DelayMs > 0 {
			select {
			case <-ctx.Done():
				return Result{}, lfserrors.New("executor.Execute", lfserrors.KindTimeout, ctx.Err())
			case <-clk.After(time.Duration(wave.DelayMs) * time.Millisecond):
			}
		}
		if sufficientColumns(delivered, width) {
			break
		}

		metrics.ReadWaveCount(ctx, 1, nil)
		g, gctx := errgroup.WithContext(ctx)
		var resultsMu sync.Mutex
		waveResults := make(map[uint8][][]byte, len(wave.Requests))

		for _, req := range wave.Requests {
			req := req
			g.Go(func() error {
				blocks := make([][]byte, req.Range.Count)
				for i := uint32(0); i < req.Range.Count; i++ {
					data, err := fetcher.ReadBlock(gctx, req.Address, cfg.ChunkID, cfg.Version, schemeWireType(cfg.Scheme), req.Part.Part, req.Range.First+i)
					if err != nil {
						// A single failed part in a wave does not fail the
						// wave; the fallback wave (if any) substitutes an
						// alternate. Leave this column undelivered, but
						// tell C2/C4 about the failure so later plans
						// route around it (§4.3).
						if cfg.Stats != nil {
							cfg.Stats.RecordDefect(req.Address)
						}
						if cfg.Locator != nil && lfserrors.KindOf(err) == lfserrors.KindChunkCrc {
							cfg.Locator.Invalidate(cfg.Inode, cfg.ChunkIndex)
						}
						return nil
					}
					blocks[i] = data
				}
				resultsMu.Lock()
				waveResults[req.Part.Part] = blocks
				resultsMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}

		for part, blocks := range waveResults {
			columns[part] = blocks
			delivered[part] = true
		}
	}

	if !sufficientColumns(delivered, width) {
		return Result{}, lfserrors.New("executor.Execute", lfserrors.KindNoValidCopies, nil)
	}

	if plan.Direct {
		return assembleDirect(plan, columns)
	}
	return assembleRows(ctx, metrics, cfg.Scheme, plan, columns)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// sufficientColumns reports whether delivered holds at least width
// columns: chunktype.PartType.Width is the data-column count, and any
// width columns out of the scheme's total (Width()+Tolerance()) columns
// suffice to decode, whether or not they are the data columns
// specifically.
func sufficientColumns(delivered map[uint8]bool, width int) bool {
	minParts := width
	if minParts < 1 {
		minParts = 1
	}
	count := 0
	for _, ok := range delivered {
		if ok {
			count++
		}
	}
	return count >= minParts
}

func schemeWireType(p chunktype.PartType) uint8 {
	switch p.Scheme {
	case chunktype.SchemeXor:
		return 1
	case chunktype.SchemeRS:
		return 2
	default:
		return 0
	}
}

// assembleDirect pulls each requested block straight out of the single
// data part that owns it: the plan already resolved DataColumns to the
// wire Part values the read needs, in logical block order, and planner
// only takes this path when every one of them was actually requested
// (no reconstruction is possible or necessary for a single-stripe
// partial read).
func assembleDirect(plan planner.Plan, columns map[uint8][][]byte) (Result, error) {
	out := make([][]byte, len(plan.DataColumns))
	for i, wirePart := range plan.DataColumns {
		blocks, ok := columns[wirePart]
		if !ok || len(blocks) == 0 || blocks[0] == nil {
			return Result{}, lfserrors.New("executor.assembleDirect", lfserrors.KindNoValidCopies, nil)
		}
		out[i] = blocks[0]
	}
	return Result{Blocks: out}, nil
}

// assembleRows reconstructs any missing columns via C10 over
// plan.RowFirst/RowCount stripe rows, interleaves the data columns'
// rows back into logical block order (for row r, logical blocks
// [r*width, (r+1)*width) come from data columns [0,width) in column
// order), then trims the result down to the originally-requested
// [FirstBlock, FirstBlock+BlockCount) range — the row range is
// typically wider, since it's padded out to whole stripes. Standard
// chunks have a single column, no rows to trim, and need no
// reconstruction.
func assembleRows(ctx context.Context, metrics common.MetricHandle, scheme chunktype.PartType, plan planner.Plan, columns map[uint8][][]byte) (Result, error) {
	if scheme.Scheme == chunktype.SchemeStandard {
		for _, blocks := range columns {
			return Result{Blocks: blocks}, nil
		}
		return Result{}, lfserrors.New("executor.assembleRows", lfserrors.KindNoValidCopies, nil)
	}

	width := scheme.Width()
	rowCount := plan.RowCount
	if rowCount == 0 {
		// Hand-built plans (tests) may omit RowCount; treat BlockCount
		// as the row count directly, matching their single-stripe intent.
		rowCount = plan.BlockCount
	}

	var codec erasure.Codec
	var err error
	var dataColumns []uint8 // column indices holding data, in logical order
	var totalColumns int
	if scheme.Scheme == chunktype.SchemeXor {
		codec = erasure.NewXor()
		totalColumns = width + 1
		for i := 1; i <= width; i++ {
			dataColumns = append(dataColumns, uint8(i))
		}
	} else {
		codec, err = erasure.NewRS(width, int(scheme.M))
		if err != nil {
			return Result{}, err
		}
		totalColumns = width + int(scheme.M)
		for i := 0; i < width; i++ {
			dataColumns = append(dataColumns, uint8(i))
		}
	}

	out := make([][]byte, 0, int(rowCount)*width)
	for row := uint32(0); row < rowCount; row++ {
		shards := make([][]byte, totalColumns)
		missing := 0
		for col := 0; col < totalColumns; col++ {
			if blocks, ok := columns[uint8(col)]; ok && int(row) < len(blocks) {
				shards[col] = blocks[row]
			} else {
				missing++
			}
		}
		if err := codec.Reconstruct(shards); err != nil {
			return Result{}, err
		}
		if missing > 0 {
			metrics.ReadReconstructionCount(ctx, 1, nil)
		}
		for _, col := range dataColumns {
			out = append(out, shards[col])
		}
	}
	return Result{Blocks: trimToRequested(out, plan, width)}, nil
}

// trimToRequested narrows out — one block per logical position in the
// [rowFirst*width, (rowFirst+rowCount)*width) range the row plan
// actually fetched — down to the [FirstBlock, FirstBlock+BlockCount)
// range the caller asked for.
func trimToRequested(out [][]byte, plan planner.Plan, width int) [][]byte {
	start := int(plan.FirstBlock) - int(plan.RowFirst)*width
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		start = len(out)
	}
	end := start + int(plan.BlockCount)
	if end > len(out) {
		end = len(out)
	}
	return out[start:end]
}
