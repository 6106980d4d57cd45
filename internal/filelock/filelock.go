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

// Package filelock coordinates flock and POSIX byte-range locks through
// the master (C14). Both lock families fire a request carrying a
// monotonically increasing reqId and block until the master's
// asynchronous reply arrives; a separate cancellation path sends
// INTERRUPT(owner, inode, reqId) and the master answers the original
// wait with EINTR. Grounded on original_source/utils/flockcmd.cc and
// posixlockcmd.cc: both drive the shared/exclusive and read/write lock
// requests through a blocking wait that a signal (there, SIGUSR2) can
// interrupt early, which this package generalizes from OS signals to a
// context.Context cancellation.
package filelock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
)

// Coordinator issues lock/unlock/interrupt requests to the master and
// tracks in-flight waiters so Cancel can find and interrupt one.
type Coordinator struct {
	master masterrpc.Client

	nextReqID uint64

	mu      sync.Mutex
	waiters map[uint64]*waiter
}

type waiter struct {
	inode uint32
	owner masterrpc.LockOwner
	done  chan struct{}
}

// New builds a coordinator against master.
func New(master masterrpc.Client) *Coordinator {
	return &Coordinator{
		master:  master,
		waiters: make(map[uint64]*waiter),
	}
}

// NewOwner derives a LockOwner for (sessionID, pid) with a fresh,
// process-unique owner token, so two fds opened by the same process for
// the same file get distinct POSIX lock owners unless the caller
// deliberately shares one.
func NewOwner(sessionID uint32, pid uint32) masterrpc.LockOwner {
	id := uuid.New()
	var token uint64
	for _, b := range id[:8] {
		token = token<<8 | uint64(b)
	}
	return masterrpc.LockOwner{SessionID: sessionID, Owner: token, Pid: pid}
}

func (c *Coordinator) allocReqID() uint64 {
	return atomic.AddUint64(&c.nextReqID, 1)
}

// SetLk requests (or releases, if unlock is set) a POSIX byte-range lock
// and blocks until the master replies or ctx is cancelled, in which case
// it sends INTERRUPT and waits for the original call to return EINTR.
func (c *Coordinator) SetLk(ctx context.Context, inode uint32, owner masterrpc.LockOwner, start, end uint64, exclusive, unlock bool) error {
	reqID := c.allocReqID()
	c.registerWaiter(reqID, inode, owner)
	defer c.unregisterWaiter(reqID)

	type result struct{ err error }
	resCh := make(chan result, 1)
	go func() {
		err := c.master.SetLk(context.Background(), masterrpc.SetLkRequest{
			Inode: inode, ReqID: reqID, Owner: owner,
			Start: start, End: end, Exclusive: exclusive, Unlock: unlock,
		})
		resCh <- result{err}
	}()

	select {
	case res := <-resCh:
		return res.err
	case <-ctx.Done():
		c.interrupt(reqID)
		<-resCh // the original call must still return EINTR before we proceed
		return lfserrors.New("filelock.SetLk", lfserrors.KindEinval, ctx.Err())
	}
}

// GetLk queries whether a prospective lock would conflict, without
// acquiring it.
func (c *Coordinator) GetLk(ctx context.Context, inode uint32, owner masterrpc.LockOwner, start, end uint64, exclusive bool) (masterrpc.GetLkResponse, error) {
	return c.master.GetLk(ctx, masterrpc.GetLkRequest{
		Inode: inode, Owner: owner, Start: start, End: end, Exclusive: exclusive,
	})
}

// Flock requests (or releases) a whole-file flock lock, with the same
// cancellation contract as SetLk.
func (c *Coordinator) Flock(ctx context.Context, inode uint32, owner masterrpc.LockOwner, exclusive, unlock bool) error {
	reqID := c.allocReqID()
	c.registerWaiter(reqID, inode, owner)
	defer c.unregisterWaiter(reqID)

	type result struct{ err error }
	resCh := make(chan result, 1)
	go func() {
		err := c.master.Flock(context.Background(), masterrpc.FlockRequest{
			Inode: inode, ReqID: reqID, Owner: owner, Exclusive: exclusive, Unlock: unlock,
		})
		resCh <- result{err}
	}()

	select {
	case res := <-resCh:
		return res.err
	case <-ctx.Done():
		c.interrupt(reqID)
		<-resCh
		return lfserrors.New("filelock.Flock", lfserrors.KindEinval, ctx.Err())
	}
}

// UnlockAll releases every lock owner holds on inode, fire-and-forget:
// spec.md §4.9 requires this to be the last operation on close, not one
// whose result callers wait on.
func (c *Coordinator) UnlockAll(inode uint32, owner masterrpc.LockOwner) {
	go func() {
		_ = c.master.SetLk(context.Background(), masterrpc.SetLkRequest{
			Inode: inode, ReqID: c.allocReqID(), Owner: owner,
			Start: 0, End: ^uint64(0), Unlock: true,
		})
		_ = c.master.Flock(context.Background(), masterrpc.FlockRequest{
			Inode: inode, ReqID: c.allocReqID(), Owner: owner, Unlock: true,
		})
	}()
}

func (c *Coordinator) registerWaiter(reqID uint64, inode uint32, owner masterrpc.LockOwner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[reqID] = &waiter{inode: inode, owner: owner, done: make(chan struct{})}
}

func (c *Coordinator) unregisterWaiter(reqID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, reqID)
}

func (c *Coordinator) interrupt(reqID uint64) {
	_ = c.master.LockInterrupt(context.Background(), masterrpc.LockInterruptRequest{ReqID: reqID})
}
