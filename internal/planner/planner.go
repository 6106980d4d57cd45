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

// Package planner builds a ReadPlan (C5): a wave list that requests the
// minimum set of parts needed to decode a block range, with fallback
// waves substituting alternates for parts a prior wave has not yet
// delivered. Grounded on the overdrive/standby-worker fallback pattern
// (fallback workers == fallback waves) and C2's endpoint scoring for tie
// breaks.
package planner

import (
	"sort"

	"github.com/lizardfs-go/chunkclient/internal/chunktype"
	"github.com/lizardfs-go/chunkclient/internal/csstats"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

// BlockRange is a half-open [First, First+Count) range of block indices
// within a chunk.
type BlockRange struct {
	First uint32
	Count uint32
}

// Request is one (part, block range) pair issued in a wave.
type Request struct {
	Part    chunktype.PartType
	Address string
	Range   BlockRange
}

// Wave is a set of Requests issued together; DelayMs is the duration
// after wave 0 fires before this wave fires, if its parts are still
// undelivered by then.
type Wave struct {
	DelayMs  int64
	Requests []Request
}

// Plan is the full wave list covering a read. FirstBlock/BlockCount are
// the logical, chunk-wide block range the caller asked for; RowFirst/
// RowCount are the same range translated into the scheme's stripe rows
// (row = block/width) that the Waves' Requests actually carry. Direct
// is set when the read is confined to a single stripe and every needed
// data column had a replica available: Waves then holds exactly the
// needed data parts (DataColumns, in logical block order) with no
// redundancy to spare and no reconstruction required.
type Plan struct {
	FirstBlock uint32
	BlockCount uint32

	RowFirst uint32
	RowCount uint32

	Direct      bool
	DataColumns []uint8

	Waves []Wave
}

// Config bounds planner behavior; all timeouts are advisory for the
// executor (C6), which owns the actual timers.
type Config struct {
	WaveTimeoutMs int64
}

// DefaultConfig mirrors spec.md's suggested wave cadence.
func DefaultConfig() Config { return Config{WaveTimeoutMs: 350} }

// Replica names one candidate source for a part: where to fetch it and
// which column of the chunk's redundancy scheme it holds. Scheme carries
// the chunk-wide geometry (level, or k/m); Part distinguishes columns
// within it.
type Replica struct {
	Address string
	Scheme  chunktype.PartType
	Part    uint8
}

func (r Replica) partType() chunktype.PartType {
	pt := r.Scheme
	pt.Part = r.Part
	return pt
}

// Plan produces a wave list for reading [firstBlock, firstBlock+blockCount)
// from the given candidate replicas (all of the same chunk and therefore
// the same redundancy scheme), scored by stats. Fails with NoValidCopies
// if fewer than width distinct parts can be assembled to cover the
// range: width is exactly the number of columns a decode needs,
// regardless of how many of the scheme's redundancy columns are spares
// (chunktype.PartType.Width is defined as the data-column count; a
// scheme's total column count is Width()+Tolerance()).
//
// A striped scheme (width>1) stores blocks round-robin across its data
// columns, so a logical block range must be translated into a per-part
// stripe-row range before it means anything to a chunkserver: row =
// block/width. When the requested range is confined to a single stripe,
// Plan requests directly the data parts that actually hold the needed
// blocks (no spare, no reconstruction) if a replica for each is
// available; otherwise — spanning multiple stripes, or a needed data
// part missing — it falls back to a reconstruction-capable plan that
// requests width parts per wave over the full row range (spec.md §4.2).
func Plan(cfg Config, firstBlock, blockCount uint32, replicas []Replica, stats *csstats.Registry) (Plan, error) {
	if len(replicas) == 0 {
		return Plan{}, lfserrors.New("planner.Plan", lfserrors.KindNoValidCopies, nil)
	}
	if blockCount == 0 {
		return Plan{FirstBlock: firstBlock}, nil
	}

	scheme := replicas[0].Scheme
	width := scheme.Width()
	if width < 1 {
		width = 1
	}

	lastBlock := firstBlock + blockCount - 1
	firstStripe := firstBlock / uint32(width)
	lastStripe := lastBlock / uint32(width)

	if width > 1 && firstStripe == lastStripe {
		if p, ok := planDirect(firstBlock, blockCount, firstStripe, width, scheme, replicas, stats); ok {
			return p, nil
		}
		// No replica directly serves every needed column: fall through
		// to a reconstruction-capable plan over the full stripe row.
	}

	return planRows(cfg, firstBlock, blockCount, firstStripe, lastStripe-firstStripe+1, width, replicas, stats)
}

// planDirect builds a one-wave plan requesting exactly the data parts
// that hold [firstBlock, firstBlock+blockCount), all within stripe
// row. It succeeds only if every needed data column has a matching
// replica; callers fall back to planRows otherwise.
func planDirect(firstBlock, blockCount, row uint32, width int, scheme chunktype.PartType, replicas []Replica, stats *csstats.Registry) (Plan, bool) {
	ordered := orderByScore(replicas, stats)

	dataColumns := make([]uint8, blockCount)
	seen := make(map[uint8]bool, blockCount)
	var reqs []Request
	for i := uint32(0); i < blockCount; i++ {
		col := int((firstBlock + i) % uint32(width))
		wirePart := dataPartFor(scheme, col)
		dataColumns[i] = wirePart
		if seen[wirePart] {
			continue
		}
		seen[wirePart] = true

		replica, ok := findByPart(ordered, wirePart)
		if !ok {
			return Plan{}, false
		}
		reqs = append(reqs, Request{
			Part:    replica.partType(),
			Address: replica.Address,
			Range:   BlockRange{First: row, Count: 1},
		})
	}

	return Plan{
		FirstBlock:  firstBlock,
		BlockCount:  blockCount,
		RowFirst:    row,
		RowCount:    1,
		Direct:      true,
		DataColumns: dataColumns,
		Waves:       []Wave{{DelayMs: 0, Requests: reqs}},
	}, true
}

// planRows builds a reconstruction-capable plan: each wave requests
// width parts over the full [rowFirst, rowFirst+rowCount) stripe-row
// range. Fallback waves are built only from whole tiers of width further
// replicas; replicas left over after the last whole tier get no wave, so
// when fewer than width replicas remain after the primary wave, a failed
// primary part has no substitute and the read cannot be decoded.
func planRows(cfg Config, firstBlock, blockCount, rowFirst, rowCount uint32, width int, replicas []Replica, stats *csstats.Registry) (Plan, error) {
	minParts := width
	if minParts < 1 {
		minParts = 1
	}

	ordered := orderByScore(replicas, stats)
	distinct := make(map[uint8]bool, len(ordered))
	for _, r := range ordered {
		distinct[r.Part] = true
	}
	if len(distinct) < minParts {
		return Plan{}, lfserrors.New("planner.Plan", lfserrors.KindNoValidCopies, nil)
	}

	primary := ordered[:minParts]
	remaining := ordered[minParts:]

	waves := []Wave{{DelayMs: 0, Requests: toRequests(primary, rowFirst, rowCount)}}

	// Fallback waves substitute the next-best untried replicas for the
	// primary set, one wave per remaining candidate tier.
	for len(remaining) >= minParts {
		fallback := remaining[:minParts]
		remaining = remaining[minParts:]
		waves = append(waves, Wave{
			DelayMs:  cfg.WaveTimeoutMs * int64(len(waves)),
			Requests: toRequests(fallback, rowFirst, rowCount),
		})
	}

	return Plan{
		FirstBlock: firstBlock,
		BlockCount: blockCount,
		RowFirst:   rowFirst,
		RowCount:   rowCount,
		Waves:      waves,
	}, nil
}

func toRequests(rs []Replica, rowFirst, rowCount uint32) []Request {
	reqs := make([]Request, 0, len(rs))
	for _, r := range rs {
		reqs = append(reqs, Request{
			Part:    r.partType(),
			Address: r.Address,
			Range:   BlockRange{First: rowFirst, Count: rowCount},
		})
	}
	return reqs
}

// dataPartFor returns the wire Part value of scheme's col-th (0-based)
// data column: Xor data parts are numbered 1..level (0 is parity), RS
// data parts are numbered 0..k directly.
func dataPartFor(scheme chunktype.PartType, col int) uint8 {
	if scheme.Scheme == chunktype.SchemeXor {
		return uint8(col + 1)
	}
	return uint8(col)
}

func findByPart(rs []Replica, part uint8) (Replica, bool) {
	for _, r := range rs {
		if r.Part == part {
			return r, true
		}
	}
	return Replica{}, false
}

// orderByScore sorts replicas by descending csstats score, ascending
// pending-op count, then ascending address, per the planner tie-break
// rule (spec.md §4.2).
func orderByScore(rs []Replica, stats *csstats.Registry) []Replica {
	out := make([]Replica, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := stats.Score(out[i].Address), stats.Score(out[j].Address)
		if si != sj {
			return si > sj
		}
		pi, pj := stats.PendingOps(out[i].Address), stats.PendingOps(out[j].Address)
		if pi != pj {
			return pi < pj
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// FromLocations adapts a master ChunkLocation's wire replicas into
// planner Replicas under a shared scheme, resolving each ReplicaLocation's
// PartIndex as scheme.Part.
func FromLocations(scheme chunktype.PartType, replicas []masterrpc.ReplicaLocation) []Replica {
	out := make([]Replica, 0, len(replicas))
	for _, loc := range replicas {
		out = append(out, Replica{Address: loc.Address, Scheme: scheme, Part: loc.PartIndex})
	}
	return out
}
