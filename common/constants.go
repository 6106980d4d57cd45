// Copyright 2024 Google LLC
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

package common

// Metric attribute keys shared across the metric handle families below.
const (
	ReadType   = "read_type"
	OpType     = "op_type"
	ErrorKind  = "error_kind"
	CacheName  = "cache_name"
	LimitScope = "limit_scope"
)

// Operation names used as the OpType attribute value on MasterRPCMetricHandle
// and ChunkserverRPCMetricHandle calls.
const (
	OpReadChunk      = "ReadChunk"
	OpWriteChunkInit = "WriteChunkInit"
	OpWriteChunkEnd  = "WriteChunkEnd"
	OpTruncateBegin  = "TruncateBegin"
	OpTruncateEnd    = "TruncateEnd"
	OpLookup         = "Lookup"
	OpMkdir          = "Mkdir"
	OpRmdir          = "Rmdir"
	OpRename         = "Rename"
	OpUnlink         = "Unlink"
	OpGetAttr        = "GetAttr"
	OpSetAttr        = "SetAttr"
	OpReadDir        = "ReadDir"
	OpGetAcl         = "GetAcl"
	OpSetAcl         = "SetAcl"
	OpFlock          = "Flock"
	OpPosixLock      = "PosixLock"
	OpIOLimit        = "IOLimit"
)

// Read-path subtypes used as the ReadType attribute value.
const (
	ReadTypeSequential = "sequential"
	ReadTypeRandom     = "random"
	ReadTypeReadahead  = "readahead"
)
