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

// Package session drives the three-step master registration handshake
// (GET_RANDOM, NEW_SESSION, RECONNECT) and holds the session identity every
// other RPC in this module presents to the master.
package session

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"

	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
)

// Flags are the per-session behavior toggles negotiated at NEW_SESSION
// time.
type Flags uint16

const (
	FlagReadOnly Flags = 1 << iota
	FlagDynamicIP
	FlagIgnoreGid
	FlagAllCanChangeQuota
	FlagMapAll
	FlagNoMasterPermCheck
	FlagNonrootMeta
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// ChallengeSize is the length, in bytes, of the GET_RANDOM challenge.
const ChallengeSize = 32

// Handshaker is the subset of the master RPC surface the registration
// sequence needs. internal/masterrpc.Client satisfies it structurally.
type Handshaker interface {
	GetRandom(ctx context.Context) ([ChallengeSize]byte, error)
	NewSession(ctx context.Context, req NewSessionRequest) (id uint32, version uint32, err error)
	Reconnect(ctx context.Context, id uint32, version uint32) error
}

// NewSessionRequest is the NEW_SESSION payload: a mount subfolder, the
// MD5 challenge response, and the requested session flags.
type NewSessionRequest struct {
	Subfolder        string
	ChallengeResponse [md5.Size]byte
	Flags            Flags
	RootUID          uint32
	RootGID          uint32
}

// HashChallenge computes the MD5(password || challenge) response the
// master expects back at NEW_SESSION time.
func HashChallenge(password string, challenge [ChallengeSize]byte) [md5.Size]byte {
	h := md5.New()
	h.Write([]byte(password))
	h.Write(challenge[:])
	var sum [md5.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Session is the registered identity this client presents on every RPC.
// It is safe for concurrent use. ID, version and flags are set once by
// Register; this package offers no way to change them afterwards.
type Session struct {
	mu      sync.RWMutex
	id      uint32
	version uint32
	flags   Flags
}

// ID returns the current session ID, or 0 if registration has not
// completed.
func (s *Session) ID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Version returns the current session epoch.
func (s *Session) Version() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Flags returns the negotiated session flags.
func (s *Session) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

func (s *Session) set(id, version uint32, flags Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.version, s.flags = id, version, flags
}

// Register performs GET_RANDOM followed by NEW_SESSION and populates s
// with the resulting session ID, version, and flags.
func Register(ctx context.Context, h Handshaker, password, subfolder string, flags Flags) (*Session, error) {
	challenge, err := h.GetRandom(ctx)
	if err != nil {
		return nil, lfserrors.New("session.Register", lfserrors.KindConnect, err)
	}

	id, version, err := h.NewSession(ctx, NewSessionRequest{
		Subfolder:         subfolder,
		ChallengeResponse: HashChallenge(password, challenge),
		Flags:             flags,
	})
	if err != nil {
		return nil, lfserrors.New("session.Register", lfserrors.KindPasswordNeeded, err)
	}

	s := &Session{}
	s.set(id, version, flags)
	return s, nil
}

// Resume reattaches to an existing session after a reconnect (e.g. a
// transient master connection loss), using the previously negotiated ID
// and version. On success the session's ID and version are left
// unchanged.
func (s *Session) Resume(ctx context.Context, h Handshaker) error {
	id, version := s.ID(), s.Version()
	if id == 0 {
		return lfserrors.New("session.Resume", lfserrors.KindSessionLost, fmt.Errorf("no session to resume"))
	}
	if err := h.Reconnect(ctx, id, version); err != nil {
		return lfserrors.New("session.Resume", lfserrors.KindSessionLost, err)
	}
	return nil
}
