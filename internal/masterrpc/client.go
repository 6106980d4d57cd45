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

package masterrpc

import (
	"context"

	"github.com/lizardfs-go/chunkclient/internal/session"
)

// Client is the full master RPC surface the engine's domain components
// are built against. internal/session.Handshaker is embedded so a Client
// can drive its own registration handshake.
type Client interface {
	session.Handshaker

	ReadChunk(ctx context.Context, req ReadChunkRequest) (ReadChunkResponse, error)
	WriteChunk(ctx context.Context, req WriteChunkRequest) (WriteChunkResponse, error)
	WriteChunkEnd(ctx context.Context, req WriteChunkEndRequest) error
	TruncateBegin(ctx context.Context, req TruncateBeginRequest) (TruncateBeginResponse, error)
	TruncateEnd(ctx context.Context, req TruncateEndRequest) error

	Lookup(ctx context.Context, req LookupRequest) (LookupResponse, error)
	GetAttr(ctx context.Context, req GetAttrRequest) (GetAttrResponse, error)
	SetAttr(ctx context.Context, req SetAttrRequest) (SetAttrResponse, error)
	Mkdir(ctx context.Context, req MkdirRequest) (MkdirResponse, error)
	Rmdir(ctx context.Context, req RmdirRequest) error
	Rename(ctx context.Context, req RenameRequest) error
	Unlink(ctx context.Context, req UnlinkRequest) error
	Symlink(ctx context.Context, req SymlinkRequest) (SymlinkResponse, error)
	ReadDir(ctx context.Context, req ReadDirRequest) (ReadDirResponse, error)

	GetAcl(ctx context.Context, req GetAclRequest) (GetAclResponse, error)
	SetAcl(ctx context.Context, req SetAclRequest) error
	DeleteAcl(ctx context.Context, req DeleteAclRequest) error

	GetLk(ctx context.Context, req GetLkRequest) (GetLkResponse, error)
	SetLk(ctx context.Context, req SetLkRequest) error
	Flock(ctx context.Context, req FlockRequest) error
	LockInterrupt(ctx context.Context, req LockInterruptRequest) error

	IOLimit(ctx context.Context, req IOLimitRequest) (IOLimitResponse, error)
	IOLimitsConfig(ctx context.Context, req IOLimitsConfigRequest) (IOLimitsConfigResponse, error)
	UpdateCredentials(ctx context.Context, req UpdateCredentialsRequest) error
}
