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

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type ShutdownFn func(ctx context.Context) error

// The default time buckets for latency metrics. The unit varies by metric:
// RPC latencies are recorded in milliseconds, limiter wait time in
// microseconds.
var defaultLatencyDistribution = metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000, 50000, 100000)

// JoinShutdownFunc combines the provided shutdown functions into a single function.
func JoinShutdownFunc(shutdownFns ...ShutdownFn) ShutdownFn {
	return func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFns {
			if fn == nil {
				continue
			}
			err = errors.Join(err, fn(ctx))
		}
		return err
	}
}

// MetricAttr represents the attributes associated with a metric.
type MetricAttr struct {
	Key, Value string
}

func (a *MetricAttr) String() string {
	return fmt.Sprintf("Key: %s, Value: %s", a.Key, a.Value)
}

// MasterRPCMetricHandle covers every call made against internal/masterrpc:
// chunk location lookups, write lease bookkeeping, directory and ACL
// operations, and lock grants.
type MasterRPCMetricHandle interface {
	MasterRPCCount(ctx context.Context, inc int64, attrs []MetricAttr)
	MasterRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr)
	MasterRPCErrorCount(ctx context.Context, inc int64, attrs []MetricAttr)
}

// ChunkserverRPCMetricHandle covers calls made against internal/csrpc: block
// reads, prefetch hints and write-block pipelines.
type ChunkserverRPCMetricHandle interface {
	ChunkserverRPCCount(ctx context.Context, inc int64, attrs []MetricAttr)
	ChunkserverRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr)
	ChunkserverBytesCount(ctx context.Context, inc int64, attrs []MetricAttr)
}

// ReadMetricHandle covers the read planner/executor (C5/C6) and erasure
// decoder (C10): number of waves issued, CRC verification failures and
// successful erasure reconstructions.
type ReadMetricHandle interface {
	ReadWaveCount(ctx context.Context, inc int64, attrs []MetricAttr)
	ReadCrcFailureCount(ctx context.Context, inc int64, attrs []MetricAttr)
	ReadReconstructionCount(ctx context.Context, inc int64, attrs []MetricAttr)
}

// WriteMetricHandle covers the write coordinator (C8): blocks admitted into
// the write window and time spent waiting for chunkserver acks.
type WriteMetricHandle interface {
	WriteBlockCount(ctx context.Context, inc int64, attrs []MetricAttr)
	WriteAckLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr)
}

// IOLimitMetricHandle covers the token-bucket limiter (C11): time spent
// blocked waiting for tokens and outright rejections once the wait deadline
// is exceeded.
type IOLimitMetricHandle interface {
	IOLimitWaitLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr)
	IOLimitRejectCount(ctx context.Context, inc int64, attrs []MetricAttr)
}

// CacheMetricHandle covers the directory-entry (C12) and ACL (C13) caches.
type CacheMetricHandle interface {
	CacheHitCount(ctx context.Context, inc int64, attrs []MetricAttr)
	CacheMissCount(ctx context.Context, inc int64, attrs []MetricAttr)
	CacheEvictionCount(ctx context.Context, inc int64, attrs []MetricAttr)
}

// MetricHandle is the full set of instruments the engine records against.
// Components are handed the interface, not the concrete otelMetrics type, so
// tests can substitute NewNoopMetrics or a MockMetricHandle.
type MetricHandle interface {
	MasterRPCMetricHandle
	ChunkserverRPCMetricHandle
	ReadMetricHandle
	WriteMetricHandle
	IOLimitMetricHandle
	CacheMetricHandle
}

// CaptureReadWaveMetrics records a single wave of a read plan: one wave
// counted under the request's read type, plus CRC failures and erasure
// reconstructions observed while serving it.
func CaptureReadWaveMetrics(ctx context.Context, m MetricHandle, readType string, crcFailures, reconstructions int64) {
	m.ReadWaveCount(ctx, 1, []MetricAttr{{Key: ReadType, Value: readType}})
	if crcFailures > 0 {
		m.ReadCrcFailureCount(ctx, crcFailures, []MetricAttr{{Key: ReadType, Value: readType}})
	}
	if reconstructions > 0 {
		m.ReadReconstructionCount(ctx, reconstructions, []MetricAttr{{Key: ReadType, Value: readType}})
	}
}
