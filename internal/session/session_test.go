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

package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lizardfs-go/chunkclient/internal/lfserrors"
	"github.com/lizardfs-go/chunkclient/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandshaker struct {
	challenge      [session.ChallengeSize]byte
	wantID         uint32
	wantVersion    uint32
	newSessionErr  error
	reconnectErr   error
	gotReq         session.NewSessionRequest
	reconnectCalls int
}

func (f *fakeHandshaker) GetRandom(ctx context.Context) ([session.ChallengeSize]byte, error) {
	return f.challenge, nil
}

func (f *fakeHandshaker) NewSession(ctx context.Context, req session.NewSessionRequest) (uint32, uint32, error) {
	f.gotReq = req
	if f.newSessionErr != nil {
		return 0, 0, f.newSessionErr
	}
	return f.wantID, f.wantVersion, nil
}

func (f *fakeHandshaker) Reconnect(ctx context.Context, id, version uint32) error {
	f.reconnectCalls++
	return f.reconnectErr
}

func TestHashChallenge_Deterministic(t *testing.T) {
	var challenge [session.ChallengeSize]byte
	for i := range challenge {
		challenge[i] = byte(i)
	}
	a := session.HashChallenge("hunter2", challenge)
	b := session.HashChallenge("hunter2", challenge)
	assert.Equal(t, a, b)

	c := session.HashChallenge("different", challenge)
	assert.NotEqual(t, a, c)
}

func TestRegister_PopulatesSession(t *testing.T) {
	h := &fakeHandshaker{wantID: 7, wantVersion: 1}
	s, err := session.Register(context.Background(), h, "secret", "/export", session.FlagReadOnly)
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.ID())
	assert.EqualValues(t, 1, s.Version())
	assert.True(t, s.Flags().Has(session.FlagReadOnly))
	assert.False(t, s.Flags().Has(session.FlagMapAll))
	assert.Equal(t, "/export", h.gotReq.Subfolder)
}

func TestRegister_NewSessionFailureIsPasswordNeeded(t *testing.T) {
	h := &fakeHandshaker{newSessionErr: errors.New("auth rejected")}
	_, err := session.Register(context.Background(), h, "wrong", "/export", 0)
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindPasswordNeeded, lfserrors.KindOf(err))
}

func TestResume_WithoutPriorRegistrationIsSessionLost(t *testing.T) {
	s := &session.Session{}
	err := s.Resume(context.Background(), &fakeHandshaker{})
	require.Error(t, err)
	assert.Equal(t, lfserrors.KindSessionLost, lfserrors.KindOf(err))
}

func TestResume_CallsReconnectWithCurrentIdentity(t *testing.T) {
	h := &fakeHandshaker{wantID: 3, wantVersion: 2}
	s, err := session.Register(context.Background(), h, "secret", "/", 0)
	require.NoError(t, err)

	require.NoError(t, s.Resume(context.Background(), h))
	assert.Equal(t, 1, h.reconnectCalls)
}
