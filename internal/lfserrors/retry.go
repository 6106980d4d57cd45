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

package lfserrors

import (
	"context"
	"time"

	"github.com/lizardfs-go/chunkclient/clock"
)

// Policy implements the propagation policy: Transport and Integrity kinds
// get up to MaxRetries retries with Backoff-spaced delays; KindLockID gets
// exactly one re-acquisition attempt regardless of MaxRetries; everything
// else is returned to the caller on the first failure. No third-party
// backoff/retry library appears anywhere in the example pack, so this is
// built directly on clock.Clock, the engine's own injectable time source,
// rather than pulled in from outside it.
type Policy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Clock      clock.Clock

	// OnCredentialRefresh, if set, is invoked exactly once the first time
	// an attempt fails with KindGroupNotRegistered, before the one retry
	// that kind is allowed. It models the inline UPDATE_CREDENTIALS call
	// the spec requires before surfacing a quota/limit-scope failure.
	OnCredentialRefresh func(ctx context.Context) error
}

// DefaultBackoff is exponential with a 2x growth factor starting at 50ms,
// capped at 2s.
func DefaultBackoff(attempt int) time.Duration {
	d := 50 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 2*time.Second {
			return 2 * time.Second
		}
	}
	return d
}

// Do runs fn, retrying according to the Kind of the error fn returns. It
// stops and returns nil as soon as fn succeeds, returns ctx.Err() if ctx is
// cancelled between attempts, and otherwise returns the last error once
// retries are exhausted or the error's Kind is not retryable.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoff
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	var lastErr error
	refreshedCredentials := false
	lockIDRetried := false

	for attempt := 0; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := KindOf(err)
		switch {
		case kind.IsTransportOrIntegrity():
			if attempt >= p.MaxRetries {
				return lastErr
			}
		case kind == KindLockID:
			if lockIDRetried {
				return lastErr
			}
			lockIDRetried = true
		case kind == KindGroupNotRegistered:
			if refreshedCredentials {
				return lastErr
			}
			refreshedCredentials = true
			if p.OnCredentialRefresh != nil {
				if rerr := p.OnCredentialRefresh(ctx); rerr != nil {
					return rerr
				}
			}
		default:
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(backoff(attempt)):
		}
	}
}
