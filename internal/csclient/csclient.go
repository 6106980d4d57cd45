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

// Package csclient is the domain-facing chunkserver client (C7): it pairs
// a pooled connection (C3) and per-endpoint stats tracking (C2) around
// internal/csrpc's wire calls, verifying CRCs and translating transport
// and integrity failures into the engine's error taxonomy. Grounded on
// gcs/bucket.go+gcs/conn.go's per-endpoint RPC client shape, re-specified
// over gRPC and generalized from one bucket to many chunkserver
// endpoints.
package csclient

import (
	"context"
	"hash/crc32"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/connpool"
	"github.com/lizardfs-go/chunkclient/internal/csrpc"
	"github.com/lizardfs-go/chunkclient/internal/csstats"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

// Client issues block-level read/write/test RPCs against a specific
// chunkserver address, dialing through pool and tracking pending ops and
// defects in stats.
type Client struct {
	pool    *connpool.Pool
	stats   *csstats.Registry
	metrics common.MetricHandle
}

// New builds a Client backed by pool for connections, stats for
// per-endpoint bookkeeping, and metrics for ChunkserverRPCMetricHandle
// counters. A nil metrics discards every measurement.
func New(pool *connpool.Pool, stats *csstats.Registry, metrics common.MetricHandle) *Client {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &Client{pool: pool, stats: stats, metrics: metrics}
}

// recordRPC records one ChunkserverRPCMetricHandle sample for opType,
// plus a bytes-transferred count when n > 0.
func (c *Client) recordRPC(ctx context.Context, opType string, start time.Time, n int) {
	attrs := []common.MetricAttr{{Key: common.OpType, Value: opType}}
	c.metrics.ChunkserverRPCCount(ctx, 1, attrs)
	c.metrics.ChunkserverRPCLatency(ctx, time.Since(start), attrs)
	if n > 0 {
		c.metrics.ChunkserverBytesCount(ctx, int64(n), attrs)
	}
}

func (c *Client) wireClient(ctx context.Context, address string) (csrpc.ChunkserverClient, error) {
	cc, err := c.pool.Get(ctx, address)
	if err != nil {
		return nil, lfserrors.New("csclient.wireClient", lfserrors.KindConnect, err).WithChunk(address, 0, "")
	}
	return csrpc.NewClient(cc), nil
}

// ReadBlock fetches one block of chunkID's partType/partIndex column,
// verifying its CRC. A CRC mismatch is reported as KindChunkCrc and the
// endpoint's defect counter is bumped so the planner avoids it for a
// while.
func (c *Client) ReadBlock(ctx context.Context, address string, chunkID uint64, version uint32, partType, partIndex uint8, blockNum uint32) ([]byte, error) {
	h := c.stats.BeginRead(address)
	defer h.Release()
	start := time.Now()

	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return nil, err
	}

	resp, err := wc.Read(ctx, csrpc.ReadRequest{
		ChunkID:   chunkID,
		Version:   version,
		PartType:  partType,
		PartIndex: partIndex,
		BlockNum:  blockNum,
	})
	if err != nil {
		c.stats.RecordDefect(address)
		return nil, lfserrors.New("csclient.ReadBlock", lfserrors.KindConnect, err).WithChunk(address, chunkID, partTypeLabel(partType, partIndex))
	}

	if crc32.ChecksumIEEE(resp.Data) != resp.CRC {
		c.stats.RecordDefect(address)
		c.metrics.ReadCrcFailureCount(ctx, 1, []common.MetricAttr{{Key: common.OpType, Value: common.OpReadChunk}})
		return nil, lfserrors.New("csclient.ReadBlock", lfserrors.KindChunkCrc, nil).WithChunk(address, chunkID, partTypeLabel(partType, partIndex))
	}
	c.recordRPC(ctx, common.OpReadChunk, start, len(resp.Data))
	return resp.Data, nil
}

// Prefetch asks address to warm its page cache for [firstBlock,
// firstBlock+blockCount) of chunkID without returning data. Best-effort:
// the caller does not retry a failed prefetch.
func (c *Client) Prefetch(ctx context.Context, address string, chunkID uint64, version uint32, partType, partIndex uint8, firstBlock, blockCount uint32) error {
	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return err
	}
	return wc.Prefetch(ctx, csrpc.PrefetchRequest{
		ChunkID:    chunkID,
		Version:    version,
		PartType:   partType,
		PartIndex:  partIndex,
		FirstBlock: firstBlock,
		BlockCount: blockCount,
	})
}

// WriteInit opens a write pipeline to address for chunkID, returning
// whether the chunkserver accepted it.
func (c *Client) WriteInit(ctx context.Context, address string, chunkID uint64, version uint32, partType uint8) (bool, error) {
	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return false, err
	}
	resp, err := wc.WriteInit(ctx, csrpc.WriteInitRequest{ChunkID: chunkID, Version: version, PartType: partType})
	if err != nil {
		c.stats.RecordDefect(address)
		return false, lfserrors.New("csclient.WriteInit", lfserrors.KindConnect, err).WithChunk(address, chunkID, "")
	}
	return resp.Accepted, nil
}

// WriteBlock streams one block to an already-initialized pipeline.
func (c *Client) WriteBlock(ctx context.Context, address string, chunkID uint64, version uint32, partType uint8, blockNum, offset uint32, data []byte) error {
	h := c.stats.BeginWrite(address)
	defer h.Release()

	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := wc.WriteData(ctx, csrpc.WriteDataRequest{
		ChunkID:  chunkID,
		Version:  version,
		PartType: partType,
		BlockNum: blockNum,
		Offset:   offset,
		Data:     data,
		CRC:      crc32.ChecksumIEEE(data),
	})
	if err != nil {
		c.stats.RecordDefect(address)
		return lfserrors.New("csclient.WriteBlock", lfserrors.KindConnect, err).WithChunk(address, chunkID, "")
	}
	if resp.Status != 0 {
		c.stats.RecordDefect(address)
		return lfserrors.New("csclient.WriteBlock", lfserrors.KindProtocol, nil).WithChunk(address, chunkID, "")
	}
	c.recordRPC(ctx, common.OpWriteChunkInit, start, len(data))
	return nil
}

// WriteStatus polls for the asynchronous completion status of a prior
// write, used while draining in-flight acks before WriteEnd.
func (c *Client) WriteStatus(ctx context.Context, address string, chunkID uint64) (uint8, error) {
	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return 0, err
	}
	resp, err := wc.WriteStatus(ctx, csrpc.WriteStatusRequest{ChunkID: chunkID})
	if err != nil {
		return 0, lfserrors.New("csclient.WriteStatus", lfserrors.KindConnect, err).WithChunk(address, chunkID, "")
	}
	return resp.Status, nil
}

// WriteEnd closes the write pipeline for chunkID at version. Fire and
// forget: the chunkserver does not reply with a payload.
func (c *Client) WriteEnd(ctx context.Context, address string, chunkID uint64, version uint32) error {
	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return err
	}
	return wc.WriteEnd(ctx, csrpc.WriteEndRequest{ChunkID: chunkID, Version: version})
}

// Test asks address to verify its on-disk copy of chunkID/partType,
// without transferring data. Used by integrity scrubbing, not the hot
// read/write paths.
func (c *Client) Test(ctx context.Context, address string, chunkID uint64, version uint32, partType uint8) (bool, error) {
	wc, err := c.wireClient(ctx, address)
	if err != nil {
		return false, err
	}
	resp, err := wc.Test(ctx, csrpc.TestRequest{ChunkID: chunkID, Version: version, PartType: partType})
	if err != nil {
		return false, lfserrors.New("csclient.Test", lfserrors.KindConnect, err).WithChunk(address, chunkID, "")
	}
	return resp.OK, nil
}

func partTypeLabel(partType, partIndex uint8) string {
	label := "RS"
	switch partType {
	case 0:
		label = "STD"
	case 1:
		label = "XOR"
	}
	_ = partIndex
	return label
}
