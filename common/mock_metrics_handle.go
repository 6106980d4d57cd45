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

	"github.com/stretchr/testify/mock"
)

// MockMetricHandle lets component tests assert on exactly which metrics were
// recorded, with what attributes.
type MockMetricHandle struct {
	mock.Mock
}

func (m *MockMetricHandle) MasterRPCCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) MasterRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) MasterRPCErrorCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ChunkserverRPCCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ChunkserverRPCLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) ChunkserverBytesCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ReadWaveCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ReadCrcFailureCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ReadReconstructionCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) WriteBlockCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) WriteAckLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) IOLimitWaitLatency(ctx context.Context, latency time.Duration, attrs []MetricAttr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) IOLimitRejectCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) CacheHitCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) CacheMissCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) CacheEvictionCount(ctx context.Context, inc int64, attrs []MetricAttr) {
	m.Called(ctx, inc, attrs)
}
