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
	"time"

	"google.golang.org/grpc"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/session"
)

const (
	methodGetRandom         = "/lizardfs.Master/GetRandom"
	methodNewSession        = "/lizardfs.Master/NewSession"
	methodReconnect         = "/lizardfs.Master/Reconnect"
	methodReadChunk         = "/lizardfs.Master/ReadChunk"
	methodWriteChunk        = "/lizardfs.Master/WriteChunk"
	methodWriteChunkEnd     = "/lizardfs.Master/WriteChunkEnd"
	methodTruncateBegin     = "/lizardfs.Master/TruncateBegin"
	methodTruncateEnd       = "/lizardfs.Master/TruncateEnd"
	methodLookup            = "/lizardfs.Master/Lookup"
	methodGetAttr           = "/lizardfs.Master/GetAttr"
	methodSetAttr           = "/lizardfs.Master/SetAttr"
	methodMkdir             = "/lizardfs.Master/Mkdir"
	methodRmdir             = "/lizardfs.Master/Rmdir"
	methodRename            = "/lizardfs.Master/Rename"
	methodUnlink            = "/lizardfs.Master/Unlink"
	methodSymlink           = "/lizardfs.Master/Symlink"
	methodReadDir           = "/lizardfs.Master/ReadDir"
	methodGetAcl            = "/lizardfs.Master/GetAcl"
	methodSetAcl            = "/lizardfs.Master/SetAcl"
	methodDeleteAcl         = "/lizardfs.Master/DeleteAcl"
	methodGetLk             = "/lizardfs.Master/GetLk"
	methodSetLk             = "/lizardfs.Master/SetLk"
	methodFlock             = "/lizardfs.Master/Flock"
	methodLockInterrupt     = "/lizardfs.Master/LockInterrupt"
	methodIOLimit           = "/lizardfs.Master/IOLimit"
	methodIOLimitsConfig    = "/lizardfs.Master/IOLimitsConfig"
	methodUpdateCredentials = "/lizardfs.Master/UpdateCredentials"

	opGetRandom         = "GetRandom"
	opNewSession        = "NewSession"
	opReconnect         = "Reconnect"
	opSymlink           = "Symlink"
	opDeleteAcl         = "DeleteAcl"
	opGetLk             = "GetLk"
	opLockInterrupt     = "LockInterrupt"
	opIOLimitsConfig    = "IOLimitsConfig"
	opUpdateCredentials = "UpdateCredentials"
)

type grpcClient struct {
	cc      invoker
	metrics common.MetricHandle
}

// NewClient builds a Client that issues every RPC over cc, recording
// MasterRPCMetricHandle counters against metrics. A nil metrics discards
// every measurement.
func NewClient(cc *grpc.ClientConn, metrics common.MetricHandle) Client {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &grpcClient{cc: cc, metrics: metrics}
}

// invoke wraps call with MasterRPCMetricHandle bookkeeping: a count and
// latency sample tagged by opType, plus an error count on failure.
func (c *grpcClient) invoke(ctx context.Context, method, opType string, req, resp interface{}) error {
	m := c.metrics
	if m == nil {
		m = common.NewNoopMetrics()
	}
	attrs := []common.MetricAttr{{Key: common.OpType, Value: opType}}
	start := time.Now()
	err := call(ctx, c.cc, method, req, resp)
	m.MasterRPCCount(ctx, 1, attrs)
	m.MasterRPCLatency(ctx, time.Since(start), attrs)
	if err != nil {
		m.MasterRPCErrorCount(ctx, 1, attrs)
	}
	return err
}

func (c *grpcClient) GetRandom(ctx context.Context) ([session.ChallengeSize]byte, error) {
	var resp struct{ Challenge [session.ChallengeSize]byte }
	err := c.invoke(ctx, methodGetRandom, opGetRandom, struct{}{}, &resp)
	return resp.Challenge, err
}

func (c *grpcClient) NewSession(ctx context.Context, req session.NewSessionRequest) (uint32, uint32, error) {
	var resp struct {
		ID      uint32
		Version uint32
	}
	err := c.invoke(ctx, methodNewSession, opNewSession, req, &resp)
	return resp.ID, resp.Version, err
}

func (c *grpcClient) Reconnect(ctx context.Context, id, version uint32) error {
	req := struct {
		ID      uint32
		Version uint32
	}{id, version}
	return c.invoke(ctx, methodReconnect, opReconnect, req, nil)
}

func (c *grpcClient) ReadChunk(ctx context.Context, req ReadChunkRequest) (ReadChunkResponse, error) {
	var resp ReadChunkResponse
	err := c.invoke(ctx, methodReadChunk, common.OpReadChunk, req, &resp)
	return resp, err
}

func (c *grpcClient) WriteChunk(ctx context.Context, req WriteChunkRequest) (WriteChunkResponse, error) {
	var resp WriteChunkResponse
	err := c.invoke(ctx, methodWriteChunk, common.OpWriteChunkInit, req, &resp)
	return resp, err
}

func (c *grpcClient) WriteChunkEnd(ctx context.Context, req WriteChunkEndRequest) error {
	return c.invoke(ctx, methodWriteChunkEnd, common.OpWriteChunkEnd, req, nil)
}

func (c *grpcClient) TruncateBegin(ctx context.Context, req TruncateBeginRequest) (TruncateBeginResponse, error) {
	var resp TruncateBeginResponse
	err := c.invoke(ctx, methodTruncateBegin, common.OpTruncateBegin, req, &resp)
	return resp, err
}

func (c *grpcClient) TruncateEnd(ctx context.Context, req TruncateEndRequest) error {
	return c.invoke(ctx, methodTruncateEnd, common.OpTruncateEnd, req, nil)
}

func (c *grpcClient) Lookup(ctx context.Context, req LookupRequest) (LookupResponse, error) {
	var resp LookupResponse
	err := c.invoke(ctx, methodLookup, common.OpLookup, req, &resp)
	return resp, err
}

func (c *grpcClient) GetAttr(ctx context.Context, req GetAttrRequest) (GetAttrResponse, error) {
	var resp GetAttrResponse
	err := c.invoke(ctx, methodGetAttr, common.OpGetAttr, req, &resp)
	return resp, err
}

func (c *grpcClient) SetAttr(ctx context.Context, req SetAttrRequest) (SetAttrResponse, error) {
	var resp SetAttrResponse
	err := c.invoke(ctx, methodSetAttr, common.OpSetAttr, req, &resp)
	return resp, err
}

func (c *grpcClient) Mkdir(ctx context.Context, req MkdirRequest) (MkdirResponse, error) {
	var resp MkdirResponse
	err := c.invoke(ctx, methodMkdir, common.OpMkdir, req, &resp)
	return resp, err
}

func (c *grpcClient) Rmdir(ctx context.Context, req RmdirRequest) error {
	return c.invoke(ctx, methodRmdir, common.OpRmdir, req, nil)
}

func (c *grpcClient) Rename(ctx context.Context, req RenameRequest) error {
	return c.invoke(ctx, methodRename, common.OpRename, req, nil)
}

func (c *grpcClient) Unlink(ctx context.Context, req UnlinkRequest) error {
	return c.invoke(ctx, methodUnlink, common.OpUnlink, req, nil)
}

func (c *grpcClient) Symlink(ctx context.Context, req SymlinkRequest) (SymlinkResponse, error) {
	var resp SymlinkResponse
	err := c.invoke(ctx, methodSymlink, opSymlink, req, &resp)
	return resp, err
}

func (c *grpcClient) ReadDir(ctx context.Context, req ReadDirRequest) (ReadDirResponse, error) {
	var resp ReadDirResponse
	err := c.invoke(ctx, methodReadDir, common.OpReadDir, req, &resp)
	return resp, err
}

func (c *grpcClient) GetAcl(ctx context.Context, req GetAclRequest) (GetAclResponse, error) {
	var resp GetAclResponse
	err := c.invoke(ctx, methodGetAcl, common.OpGetAcl, req, &resp)
	return resp, err
}

func (c *grpcClient) SetAcl(ctx context.Context, req SetAclRequest) error {
	return c.invoke(ctx, methodSetAcl, common.OpSetAcl, req, nil)
}

func (c *grpcClient) DeleteAcl(ctx context.Context, req DeleteAclRequest) error {
	return c.invoke(ctx, methodDeleteAcl, opDeleteAcl, req, nil)
}

func (c *grpcClient) GetLk(ctx context.Context, req GetLkRequest) (GetLkResponse, error) {
	var resp GetLkResponse
	err := c.invoke(ctx, methodGetLk, opGetLk, req, &resp)
	return resp, err
}

func (c *grpcClient) SetLk(ctx context.Context, req SetLkRequest) error {
	return c.invoke(ctx, methodSetLk, common.OpPosixLock, req, nil)
}

func (c *grpcClient) Flock(ctx context.Context, req FlockRequest) error {
	return c.invoke(ctx, methodFlock, common.OpFlock, req, nil)
}

func (c *grpcClient) LockInterrupt(ctx context.Context, req LockInterruptRequest) error {
	return c.invoke(ctx, methodLockInterrupt, opLockInterrupt, req, nil)
}

func (c *grpcClient) IOLimit(ctx context.Context, req IOLimitRequest) (IOLimitResponse, error) {
	var resp IOLimitResponse
	err := c.invoke(ctx, methodIOLimit, common.OpIOLimit, req, &resp)
	return resp, err
}

func (c *grpcClient) IOLimitsConfig(ctx context.Context, req IOLimitsConfigRequest) (IOLimitsConfigResponse, error) {
	var resp IOLimitsConfigResponse
	err := c.invoke(ctx, methodIOLimitsConfig, opIOLimitsConfig, req, &resp)
	return resp, err
}

func (c *grpcClient) UpdateCredentials(ctx context.Context, req UpdateCredentialsRequest) error {
	return c.invoke(ctx, methodUpdateCredentials, opUpdateCredentials, req, nil)
}

var _ Client = (*grpcClient)(nil)
