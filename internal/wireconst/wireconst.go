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

// Package wireconst holds the on-wire constants every component in this
// module must agree with the master and chunkservers on. These are fixed
// by the protocol, not configuration: changing any of them changes which
// chunk a given file offset resolves to.
package wireconst

const (
	// BlockSize is the smallest unit a chunkserver transfers or checksums.
	BlockSize = 65536

	// BlocksPerChunk is the number of BlockSize blocks that make up a
	// single chunk.
	BlocksPerChunk = 1024

	// ChunkSize is the fixed size of a chunk's data area.
	ChunkSize = BlockSize * BlocksPerChunk

	// MaxNameLength bounds a single path component.
	MaxNameLength = 255

	// MaxXattrNameLength bounds an extended attribute's name.
	MaxXattrNameLength = 255

	// MaxXattrValueLength bounds a single extended attribute's value.
	MaxXattrValueLength = 65536

	// MaxXattrListLength bounds the concatenated listxattr response.
	MaxXattrListLength = 65536

	// MaxChunksPerFile is the number of chunk slots a file may address
	// (2^31).
	MaxChunksPerFile = 1 << 31

	// MaxFileSize is the largest offset a file may grow to: every chunk
	// slot filled to capacity.
	MaxFileSize = int64(ChunkSize) * MaxChunksPerFile
)

// BlockIndex returns the index, within a chunk, of the block containing
// byte offset off (0 <= off < ChunkSize).
func BlockIndex(off int64) int {
	return int(off / BlockSize)
}

// OffsetWithinBlock returns off's offset within its containing block.
func OffsetWithinBlock(off int64) int {
	return int(off % BlockSize)
}

// ChunkIndex returns the index of the chunk containing file offset off.
func ChunkIndex(off int64) uint32 {
	return uint32(off / ChunkSize)
}

// OffsetWithinChunk returns off's offset within its containing chunk.
func OffsetWithinChunk(off int64) int64 {
	return off % ChunkSize
}
