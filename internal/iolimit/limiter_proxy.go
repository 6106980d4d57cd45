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

package iolimit

import (
	"context"
	"sync"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

// MasterLimiter packages a bandwidth request to the master and awaits
// the grant, for groups whose budget is coordinated fleet-wide.
type MasterLimiter interface {
	RequestBandwidth(ctx context.Context, group string, sessionID uint32, want uint64) (granted uint64, err error)
}

// group is one BandwidthGroup: either backed by a local TokenBucket
// (Mount-scoped) or proxied to the master (fleet-scoped), plus the
// killed flag that fails pending and future waiters once the group is
// dropped from a reconfigure() call.
type group struct {
	bucket *TokenBucket
	killed bool
}

// LimiterProxy classifies callers into bandwidth groups and blocks
// cooperatively until each request is satisfied or its deadline elapses,
// per spec.md §4.5.
type LimiterProxy struct {
	mu     sync.Mutex
	groups map[string]*group
	master MasterLimiter

	pollInterval time.Duration
	metrics      common.MetricHandle
}

// New builds a proxy with no groups configured; callers must Reconfigure
// before any Attempt succeeds, matching spec.md's "reconfigure() receives
// a full list of valid groups" lifecycle. metrics may be nil, in which
// case IOLimitMetricHandle measurements are discarded.
func New(master MasterLimiter, metrics common.MetricHandle) *LimiterProxy {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &LimiterProxy{
		groups:       make(map[string]*group),
		master:       master,
		pollInterval: 10 * time.Millisecond,
		metrics:      metrics,
	}
}

// Reconfigure installs rate/ceil for each named group as of now, and
// kills any previously known group absent from the new list: pending and
// future Attempt calls against it return KindGroupNotRegistered.
func (p *LimiterProxy) Reconfigure(now time.Time, groups map[string]struct{ Rate, Ceil float64 }) {
	p.mu.Lock()
	defer p.mu.Unlock()

	valid := make(map[string]bool, len(groups))
	for name, cfg := range groups {
		valid[name] = true
		if g, ok := p.groups[name]; ok && !g.killed {
			g.bucket.Reconfigure(now, cfg.Rate, cfg.Ceil, nil)
			continue
		}
		p.groups[name] = &group{bucket: NewTokenBucket(now, cfg.Rate, cfg.Ceil)}
	}
	for name, g := range p.groups {
		if !valid[name] {
			g.killed = true
		}
	}
}

// Attempt blocks until cost tokens are granted from group, the group is
// killed, or deadline elapses. A group with no MasterLimiter configured
// is treated as Mount-scoped and draws from its local bucket only; when
// a MasterLimiter is set, Mount-local grants are topped up by asking the
// master for the remainder.
func (p *LimiterProxy) Attempt(ctx context.Context, now time.Time, groupName string, sessionID uint32, cost float64, deadline time.Time) (float64, error) {
	remaining := cost
	var granted float64
	waitStart := now
	attrs := []common.MetricAttr{{Key: common.LimitScope, Value: groupName}}

	for {
		g, ok := p.lookup(groupName)
		if !ok || g.killed {
			p.metrics.IOLimitRejectCount(ctx, 1, attrs)
			return granted, lfserrors.New("iolimit.Attempt", lfserrors.KindGroupNotRegistered, nil)
		}

		got := g.bucket.Attempt(now, remaining)
		granted += got
		remaining -= got
		if remaining <= 0 {
			p.metrics.IOLimitWaitLatency(ctx, now.Sub(waitStart), attrs)
			return granted, nil
		}

		if p.master != nil {
			fromMaster, err := p.master.RequestBandwidth(ctx, groupName, sessionID, uint64(remaining))
			if err == nil && fromMaster > 0 {
				take := float64(fromMaster)
				if take > remaining {
					take = remaining
				}
				granted += take
				remaining -= take
				if remaining <= 0 {
					p.metrics.IOLimitWaitLatency(ctx, now.Sub(waitStart), attrs)
					return granted, nil
				}
			}
		}

		if !deadline.IsZero() && !now.Before(deadline) {
			p.metrics.IOLimitRejectCount(ctx, 1, attrs)
			return granted, lfserrors.New("iolimit.Attempt", lfserrors.KindTimeout, nil)
		}

		select {
		case <-ctx.Done():
			p.metrics.IOLimitRejectCount(ctx, 1, attrs)
			return granted, lfserrors.New("iolimit.Attempt", lfserrors.KindTimeout, ctx.Err())
		case <-time.After(p.pollInterval):
		}
		now = now.Add(p.pollInterval)
	}
}

func (p *LimiterProxy) lookup(name string) (*group, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[name]
	return g, ok
}
