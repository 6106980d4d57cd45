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

// Package erasure is the Galois-field codec (C10): a single Codec trait
// with XOR and Reed-Solomon implementations, so the planner and executor
// depend on the trait rather than a concrete algorithm (spec.md's
// "heterogeneous erasure codes" redesign flag).
package erasure

import (
	"github.com/klauspost/reedsolomon"

	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

// Codec reconstructs missing blocks of a stripe given the blocks present.
// blocks[i] == nil means block i is missing and must be filled in;
// present entries must all share the same length.
type Codec interface {
	// Reconstruct fills every nil entry of blocks in place. It returns an
	// error if too many entries are nil to reconstruct.
	Reconstruct(blocks [][]byte) error
	// Encode computes parity block(s) from the data blocks, appending them
	// in column order after the data columns.
	Encode(dataBlocks [][]byte) ([][]byte, error)
}

// xorCodec implements single-parity XOR striping: the missing block (at
// most one) equals the XOR of every other block, including parity.
type xorCodec struct{}

// NewXor returns the XOR codec for a level-wide stripe (tolerance 1).
func NewXor() Codec { return xorCodec{} }

func (xorCodec) Reconstruct(blocks [][]byte) error {
	missing := -1
	var blockLen int
	for i, b := range blocks {
		if b == nil {
			if missing != -1 {
				return lfserrors.New("erasure.xorCodec.Reconstruct", lfserrors.KindNoValidCopies, nil)
			}
			missing = i
			continue
		}
		blockLen = len(b)
	}
	if missing == -1 {
		return nil
	}
	out := make([]byte, blockLen)
	for i, b := range blocks {
		if i == missing {
			continue
		}
		xorInto(out, b)
	}
	blocks[missing] = out
	return nil
}

func (xorCodec) Encode(dataBlocks [][]byte) ([][]byte, error) {
	if len(dataBlocks) == 0 {
		return nil, lfserrors.New("erasure.xorCodec.Encode", lfserrors.KindEinval, nil)
	}
	parity := make([]byte, len(dataBlocks[0]))
	for _, b := range dataBlocks {
		if len(b) != len(parity) {
			return nil, lfserrors.New("erasure.xorCodec.Encode", lfserrors.KindEinval, nil)
		}
		xorInto(parity, b)
	}
	return append(append([][]byte{}, dataBlocks...), parity), nil
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// rsCodec wraps github.com/klauspost/reedsolomon for k-data/m-parity
// Reed-Solomon stripes.
type rsCodec struct {
	k, m int
	enc  reedsolomon.Encoder
}

// NewRS returns the Reed-Solomon codec for a k-data/m-parity stripe.
func NewRS(k, m int) (Codec, error) {
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, lfserrors.New("erasure.NewRS", lfserrors.KindEinval, err)
	}
	return &rsCodec{k: k, m: m, enc: enc}, nil
}

func (c *rsCodec) Reconstruct(blocks [][]byte) error {
	if len(blocks) != c.k+c.m {
		return lfserrors.New("erasure.rsCodec.Reconstruct", lfserrors.KindEinval, nil)
	}
	if err := c.enc.Reconstruct(blocks); err != nil {
		return lfserrors.New("erasure.rsCodec.Reconstruct", lfserrors.KindNoValidCopies, err)
	}
	return nil
}

func (c *rsCodec) Encode(dataBlocks [][]byte) ([][]byte, error) {
	if len(dataBlocks) != c.k {
		return nil, lfserrors.New("erasure.rsCodec.Encode", lfserrors.KindEinval, nil)
	}
	shards := make([][]byte, c.k+c.m)
	copy(shards, dataBlocks)
	for i := c.k; i < c.k+c.m; i++ {
		shards[i] = make([]byte, len(dataBlocks[0]))
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, lfserrors.New("erasure.rsCodec.Encode", lfserrors.KindEinval, err)
	}
	return shards, nil
}
