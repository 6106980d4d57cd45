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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	masterMeter  = otel.Meter("master_rpc")
	csMeter      = otel.Meter("chunkserver_rpc")
	readMeter    = otel.Meter("read")
	writeMeter   = otel.Meter("write")
	iolimitMeter = otel.Meter("io_limit")
	cacheMeter   = otel.Meter("metadata_cache")

	attributeSets sync.Map
)

// attrSetFor turns a set of MetricAttr pairs into a cached MeasurementOption.
// The cache key is built from the attrs themselves so two calls with the same
// attribute values reuse one attribute.Set, matching the attribute-caching
// pattern the rest of the engine's hot paths rely on to avoid per-call
// allocation.
func attrSetFor(attrs []MetricAttr) metric.MeasurementOption {
	key := ""
	for _, a := range attrs {
		key += a.Key + "=" + a.Value + ";"
	}
	if v, ok := attributeSets.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = attribute.String(a.Key, a.Value)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(kvs...))
	v, _ := attributeSets.LoadOrStore(key, opt)
	return v.(metric.MeasurementOption)
}

// otelMetrics is the production MetricHandle backed by OpenTelemetry
// instruments registered on per-concern meters.
type otelMetrics struct {
	masterRPCCount      metric.Int64Counter
	masterRPCErrorCount metric.Int64Counter
	masterRPCLatency    metric.Float64Histogram

	csRPCCount    metric.Int64Counter
	csRPCLatency  metric.Float64Histogram
	csBytesCount  metric.Int64Counter

	readWaveCount           metric.Int64Counter
	readCrcFailureCount     metric.Int64Counter
	readReconstructionCount metric.Int64Counter

	writeBlockCount  metric.Int64Counter
	writeAckLatency  metric.Float64Histogram

	iolimitWaitLatency metric.Float64Histogram
	iolimitRejectCount metric.Int64Counter

	cacheHitCount      metric.Int64Counter
	cacheMissCount     metric.Int64Counter
	cacheEvictionCount metric.Int64Counter
}

func (o *otelMetrics) MasterRPCCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.masterRPCCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) MasterRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	o.masterRPCLatency.Record(ctx, float64(latency.Milliseconds()), attrSetFor(attrs))
}

func (o *otelMetrics) MasterRPCErrorCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.masterRPCErrorCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) ChunkserverRPCCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.csRPCCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) ChunkserverRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	o.csRPCLatency.Record(ctx, float64(latency.Milliseconds()), attrSetFor(attrs))
}

func (o *otelMetrics) ChunkserverBytesCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.csBytesCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) ReadWaveCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.readWaveCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) ReadCrcFailureCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.readCrcFailureCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) ReadReconstructionCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.readReconstructionCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) WriteBlockCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.writeBlockCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) WriteAckLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	o.writeAckLatency.Record(ctx, float64(latency.Milliseconds()), attrSetFor(attrs))
}

func (o *otelMetrics) IOLimitWaitLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	o.iolimitWaitLatency.Record(ctx, float64(latency.Microseconds()), attrSetFor(attrs))
}

func (o *otelMetrics) IOLimitRejectCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.iolimitRejectCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) CacheHitCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.cacheHitCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) CacheMissCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.cacheMissCount.Add(ctx, inc, attrSetFor(attrs))
}

func (o *otelMetrics) CacheEvictionCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	o.cacheEvictionCount.Add(ctx, inc, attrSetFor(attrs))
}

// NewOTelMetrics registers every instrument the engine records against and
// returns the resulting MetricHandle. Callers normally install the returned
// handle once at startup and pass it down to every component.
func NewOTelMetrics() (MetricHandle, error) {
	masterRPCCount, err1 := masterMeter.Int64Counter("master/rpc_count", metric.WithDescription("The cumulative number of RPCs issued to the metadata master."))
	masterRPCErrorCount, err2 := masterMeter.Int64Counter("master/rpc_error_count", metric.WithDescription("The cumulative number of master RPCs that returned an error."))
	masterRPCLatency, err3 := masterMeter.Float64Histogram("master/rpc_latency", metric.WithDescription("The distribution of master RPC latencies."), metric.WithUnit("ms"), defaultLatencyDistribution)

	csRPCCount, err4 := csMeter.Int64Counter("chunkserver/rpc_count", metric.WithDescription("The cumulative number of RPCs issued to chunkservers."))
	csRPCLatency, err5 := csMeter.Float64Histogram("chunkserver/rpc_latency", metric.WithDescription("The distribution of chunkserver RPC latencies."), metric.WithUnit("ms"), defaultLatencyDistribution)
	csBytesCount, err6 := csMeter.Int64Counter("chunkserver/bytes_count", metric.WithDescription("The cumulative number of payload bytes exchanged with chunkservers."), metric.WithUnit("By"))

	readWaveCount, err7 := readMeter.Int64Counter("read/wave_count", metric.WithDescription("The cumulative number of read waves issued by the read executor."))
	readCrcFailureCount, err8 := readMeter.Int64Counter("read/crc_failure_count", metric.WithDescription("The cumulative number of blocks that failed CRC verification."))
	readReconstructionCount, err9 := readMeter.Int64Counter("read/reconstruction_count", metric.WithDescription("The cumulative number of blocks recovered via erasure reconstruction."))

	writeBlockCount, err10 := writeMeter.Int64Counter("write/block_count", metric.WithDescription("The cumulative number of blocks admitted into a write window."))
	writeAckLatency, err11 := writeMeter.Float64Histogram("write/ack_latency", metric.WithDescription("The distribution of time spent waiting for a write block to be acknowledged."), metric.WithUnit("ms"), defaultLatencyDistribution)

	iolimitWaitLatency, err12 := iolimitMeter.Float64Histogram("io_limit/wait_latency", metric.WithDescription("The distribution of time spent waiting for bandwidth tokens."), metric.WithUnit("us"), defaultLatencyDistribution)
	iolimitRejectCount, err13 := iolimitMeter.Int64Counter("io_limit/reject_count", metric.WithDescription("The cumulative number of I/O operations rejected after exceeding their wait deadline."))

	cacheHitCount, err14 := cacheMeter.Int64Counter("metadata_cache/hit_count", metric.WithDescription("The cumulative number of directory-entry and ACL cache hits."))
	cacheMissCount, err15 := cacheMeter.Int64Counter("metadata_cache/miss_count", metric.WithDescription("The cumulative number of directory-entry and ACL cache misses."))
	cacheEvictionCount, err16 := cacheMeter.Int64Counter("metadata_cache/eviction_count", metric.WithDescription("The cumulative number of entries evicted from the directory-entry and ACL caches."))

	if err := errors.Join(err1, err2, err3, err4, err5, err6, err7, err8, err9, err10, err11, err12, err13, err14, err15, err16); err != nil {
		return nil, err
	}

	return &otelMetrics{
		masterRPCCount:          masterRPCCount,
		masterRPCErrorCount:     masterRPCErrorCount,
		masterRPCLatency:        masterRPCLatency,
		csRPCCount:              csRPCCount,
		csRPCLatency:            csRPCLatency,
		csBytesCount:            csBytesCount,
		readWaveCount:           readWaveCount,
		readCrcFailureCount:     readCrcFailureCount,
		readReconstructionCount: readReconstructionCount,
		writeBlockCount:         writeBlockCount,
		writeAckLatency:         writeAckLatency,
		iolimitWaitLatency:      iolimitWaitLatency,
		iolimitRejectCount:      iolimitRejectCount,
		cacheHitCount:           cacheHitCount,
		cacheMissCount:          cacheMissCount,
		cacheEvictionCount:      cacheEvictionCount,
	}, nil
}
