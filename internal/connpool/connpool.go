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

// Package connpool is a short-TTL pool of per-chunkserver-endpoint gRPC
// connections (C3), generalized from gcs/conn.go's single-bucket
// Conn/client pairing into a keyed pool with idle eviction and a cap on
// concurrent in-flight dials.
package connpool

import (
	"context"
	"sync"
	"time"

	"github.com/lizardfs-go/chunkclient/clock"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

// Dialer dials a new connection to address. Production code plugs in
// grpc.NewClient (or grpc.DialContext on older grpc-go); tests substitute
// a fake that never touches the network.
type Dialer func(ctx context.Context, address string) (*grpc.ClientConn, error)

type pooledConn struct {
	cc         *grpc.ClientConn
	lastUsed   time.Time
}

// Pool hands out a *grpc.ClientConn per endpoint, reusing a live
// connection if one was used within ttl and dialing (rate-limited by
// dialLimiter) otherwise.
type Pool struct {
	mu          sync.Mutex
	conns       map[string]*pooledConn
	ttl         time.Duration
	clk         clock.Clock
	dial        Dialer
	dialLimiter *rate.Limiter
}

// New builds a pool whose entries expire after ttl of disuse and whose
// concurrent dial rate is capped by maxDialsPerSecond (with a burst of
// int(maxDialsPerSecond)+1, so at least one dial is always allowed).
func New(dial Dialer, ttl time.Duration, maxDialsPerSecond float64, clk clock.Clock) *Pool {
	return &Pool{
		conns:       make(map[string]*pooledConn),
		ttl:         ttl,
		clk:         clk,
		dial:        dial,
		dialLimiter: rate.NewLimiter(rate.Limit(maxDialsPerSecond), int(maxDialsPerSecond)+1),
	}
}

// Get returns a connection to address, reusing a pooled one if still
// fresh, otherwise dialing a new one (after waiting on the dial rate
// limiter).
func (p *Pool) Get(ctx context.Context, address string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	if pc, ok := p.conns[address]; ok && p.clk.Now().Sub(pc.lastUsed) < p.ttl {
		pc.lastUsed = p.clk.Now()
		cc := pc.cc
		p.mu.Unlock()
		return cc, nil
	}
	p.mu.Unlock()

	if err := p.dialLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	cc, err := p.dial(ctx, address)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conns[address] = &pooledConn{cc: cc, lastUsed: p.clk.Now()}
	p.mu.Unlock()
	return cc, nil
}

// Evict drops address's pooled connection without closing it (the
// caller, who may still be using the handed-out *grpc.ClientConn, owns
// its lifetime). Called when the read executor (C6) marks an endpoint
// defective after a connection-level failure.
func (p *Pool) Evict(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, address)
}

// SweepExpired removes and returns every connection idle past ttl, so the
// caller can Close them. Bounds memory/fd use for endpoints no longer in
// use without requiring a per-entry timer.
func (p *Pool) SweepExpired() []*grpc.ClientConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clk.Now()
	var expired []*grpc.ClientConn
	for addr, pc := range p.conns {
		if now.Sub(pc.lastUsed) >= p.ttl {
			expired = append(expired, pc.cc)
			delete(p.conns, addr)
		}
	}
	return expired
}

// Len reports the number of currently pooled endpoints, for tests and
// diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
