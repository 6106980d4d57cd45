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

// Package chunktype is the chunk-part identity algebra: a chunk is either
// stored as a Standard whole copy, an Xor{level,part} stripe, or an
// RS{k,m,part} Reed-Solomon stripe. It computes stripe geometry and the
// per-part byte length a given logical chunk length maps to.
package chunktype

import "fmt"

// Scheme identifies which redundancy family a PartType belongs to.
type Scheme uint8

const (
	SchemeStandard Scheme = iota
	SchemeXor
	SchemeRS
)

// PartType is a tagged union over the three redundancy schemes. Part 0 of
// an Xor type is the parity part; RS part indices [0,k) are data, [k,k+m)
// are parity. Standard ignores Level/K/M/Part entirely.
type PartType struct {
	Scheme Scheme
	Level  uint8 // Xor: stripe width, in [2,9]
	K      uint8 // RS: data width, in [2,10]
	M      uint8 // RS: parity width, in [1,4]
	Part   uint8 // Xor: in [0,Level]; RS: in [0,K+M)
}

// Standard returns the whole-copy part type.
func Standard() PartType { return PartType{Scheme: SchemeStandard} }

// Xor returns the part-th part of a level-wide XOR stripe. part==0 is the
// parity part.
func Xor(level, part uint8) (PartType, error) {
	if level < 2 || level > 9 {
		return PartType{}, fmt.Errorf("chunktype: xor level %d out of [2,9]", level)
	}
	if part > level {
		return PartType{}, fmt.Errorf("chunktype: xor part %d out of [0,%d]", part, level)
	}
	return PartType{Scheme: SchemeXor, Level: level, Part: part}, nil
}

// RS returns the part-th part of a k-data/m-parity Reed-Solomon stripe.
func RS(k, m, part uint8) (PartType, error) {
	if k < 2 || k > 10 {
		return PartType{}, fmt.Errorf("chunktype: rs k %d out of [2,10]", k)
	}
	if m < 1 || m > 4 {
		return PartType{}, fmt.Errorf("chunktype: rs m %d out of [1,4]", m)
	}
	if part >= k+m {
		return PartType{}, fmt.Errorf("chunktype: rs part %d out of [0,%d)", part, k+m)
	}
	return PartType{Scheme: SchemeRS, K: k, M: m, Part: part}, nil
}

// FromWire rebuilds a PartType from the wire geometry a ChunkLocation
// carries (scheme/level/k/m, as reported by the master) plus which part
// column this particular replica holds.
func FromWire(scheme, level, k, m, part uint8) (PartType, error) {
	switch Scheme(scheme) {
	case SchemeStandard:
		return Standard(), nil
	case SchemeXor:
		return Xor(level, part)
	case SchemeRS:
		return RS(k, m, part)
	default:
		return PartType{}, fmt.Errorf("chunktype: unknown wire scheme %d", scheme)
	}
}

// Width is the stripe width: the number of data-bearing columns a
// reconstruction needs to reason about (level for Xor, k for RS, 1 for
// Standard).
func (p PartType) Width() int {
	switch p.Scheme {
	case SchemeXor:
		return int(p.Level)
	case SchemeRS:
		return int(p.K)
	default:
		return 1
	}
}

// Tolerance is the number of simultaneously missing parts this scheme can
// reconstruct through.
func (p PartType) Tolerance() int {
	switch p.Scheme {
	case SchemeXor:
		return 1
	case SchemeRS:
		return int(p.M)
	default:
		return 0
	}
}

// IsParity reports whether p is a redundancy (non-data) part.
func (p PartType) IsParity() bool {
	switch p.Scheme {
	case SchemeXor:
		return p.Part == 0
	case SchemeRS:
		return int(p.Part) >= int(p.K)
	default:
		return false
	}
}

func (p PartType) String() string {
	switch p.Scheme {
	case SchemeXor:
		return fmt.Sprintf("XOR%d-%d", p.Level, p.Part)
	case SchemeRS:
		return fmt.Sprintf("RS%d+%d-%d", p.K, p.M, p.Part)
	default:
		return "STD"
	}
}

// ChunkLengthToPartLength returns the number of bytes part p stores for a
// chunk whose logical length is chunkLen, with blocks of blockSize bytes.
// For Standard, the part length equals chunkLen. For XOR/RS, data
// parts carry one block per stripe that has a data block in that column;
// the parity column(s) carry one block per stripe that has *any* data in
// it (a stripe is "full-size" in the parity iff any data block in the
// stripe reaches the logical end).
func ChunkLengthToPartLength(p PartType, blockSize int, chunkLen int64) int64 {
	if chunkLen <= 0 {
		return 0
	}
	totalBlocks := (chunkLen + int64(blockSize) - 1) / int64(blockSize)

	switch p.Scheme {
	case SchemeStandard:
		return chunkLen
	case SchemeXor:
		return stripedPartLength(totalBlocks, chunkLen, int(p.Level), p.Part == 0, int(p.Part)-1, blockSize)
	case SchemeRS:
		return stripedPartLength(totalBlocks, chunkLen, int(p.K), int(p.Part) >= int(p.K), int(p.Part), blockSize)
	default:
		return 0
	}
}

// stripedPartLength computes the byte length of one column of a
// width-wide striped chunk. Blocks are assigned round-robin to data
// columns; only the chunk's globally last block can be smaller than
// blockSize. A parity column carries one block per stripe, full-size
// unless the final stripe holds exactly one data block and that block is
// itself partial (spec.md §3, "the parity/last-data block is full-size
// iff any data block in the stripe reaches the logical end").
func stripedPartLength(totalBlocks, chunkLen int64, width int, isParity bool, col int, blockSize int) int64 {
	if totalBlocks == 0 {
		return 0
	}
	lastBlockSize := chunkLen - (totalBlocks-1)*int64(blockSize)
	lastBlockColumn := int((totalBlocks - 1) % int64(width))
	remainderBlocks := totalBlocks % int64(width)

	if isParity {
		stripeCount := (totalBlocks + int64(width) - 1) / int64(width)
		size := (stripeCount - 1) * int64(blockSize)
		if remainderBlocks == 1 {
			size += lastBlockSize
		} else {
			size += int64(blockSize)
		}
		return size
	}

	count := totalBlocks / int64(width)
	if int64(col) < totalBlocks%int64(width) {
		count++
	}
	size := count * int64(blockSize)
	if col == lastBlockColumn {
		size -= int64(blockSize) - lastBlockSize
	}
	return size
}
