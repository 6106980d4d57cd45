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
	"time"
)

// NewNoopMetrics returns a MetricHandle that discards every measurement.
// Used by components constructed outside of the engine's normal startup path
// (standalone tool invocations, unit tests that don't care about metrics).
func NewNoopMetrics() MetricHandle {
	var n noopMetrics
	return &n
}

type noopMetrics struct{}

func (*noopMetrics) MasterRPCCount(context.Context, int64, []MetricAttr)                {}
func (*noopMetrics) MasterRPCLatency(context.Context, time.Duration, []MetricAttr)      {}
func (*noopMetrics) MasterRPCErrorCount(context.Context, int64, []MetricAttr)           {}
func (*noopMetrics) ChunkserverRPCCount(context.Context, int64, []MetricAttr)           {}
func (*noopMetrics) ChunkserverRPCLatency(context.Context, time.Duration, []MetricAttr) {}
func (*noopMetrics) ChunkserverBytesCount(context.Context, int64, []MetricAttr)         {}
func (*noopMetrics) ReadWaveCount(context.Context, int64, []MetricAttr)                 {}
func (*noopMetrics) ReadCrcFailureCount(context.Context, int64, []MetricAttr)           {}
func (*noopMetrics) ReadReconstructionCount(context.Context, int64, []MetricAttr)       {}
func (*noopMetrics) WriteBlockCount(context.Context, int64, []MetricAttr)               {}
func (*noopMetrics) WriteAckLatency(context.Context, time.Duration, []MetricAttr)       {}
func (*noopMetrics) IOLimitWaitLatency(context.Context, time.Duration, []MetricAttr)    {}
func (*noopMetrics) IOLimitRejectCount(context.Context, int64, []MetricAttr)            {}
func (*noopMetrics) CacheHitCount(context.Context, int64, []MetricAttr)                 {}
func (*noopMetrics) CacheMissCount(context.Context, int64, []MetricAttr)                {}
func (*noopMetrics) CacheEvictionCount(context.Context, int64, []MetricAttr)            {}
