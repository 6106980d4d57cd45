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

package csrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
)

type fakeInvoker struct {
	handlers map[string]func(reqPayload []byte) ([]byte, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error {
	reqAny := args.(*anypb.Any)
	respPayload, err := f.handlers[method](reqAny.Value)
	if err != nil {
		return err
	}
	reply.(*anypb.Any).Value = respPayload
	return nil
}

func TestGrpcClient_ReadReturnsBlockData(t *testing.T) {
	want := ReadResponse{Data: []byte("hello-block"), CRC: 0xdeadbeef, EndOfChunk: true}
	fi := &fakeInvoker{handlers: map[string]func([]byte) ([]byte, error){
		methodRead: func(req []byte) ([]byte, error) { return encode(want) },
	}}
	c := &grpcClient{cc: fi}

	got, err := c.Read(context.Background(), ReadRequest{ChunkID: 1, Version: 1, BlockNum: 0, Length: 11})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGrpcClient_WriteDataRoundTrip(t *testing.T) {
	var captured WriteDataRequest
	fi := &fakeInvoker{handlers: map[string]func([]byte) ([]byte, error){
		methodWriteData: func(req []byte) ([]byte, error) {
			require.NoError(t, decode(req, &captured))
			return encode(WriteDataResponse{Status: 0})
		},
	}}
	c := &grpcClient{cc: fi}

	resp, err := c.WriteData(context.Background(), WriteDataRequest{
		ChunkID: 42, Version: 1, BlockNum: 3, Data: []byte("payload"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, resp.Status)
	assert.EqualValues(t, 42, captured.ChunkID)
	assert.Equal(t, []byte("payload"), captured.Data)
}

func TestGrpcClient_WriteEndIsFireAndForget(t *testing.T) {
	called := false
	fi := &fakeInvoker{handlers: map[string]func([]byte) ([]byte, error){
		methodWriteEnd: func(req []byte) ([]byte, error) { called = true; return nil, nil },
	}}
	c := &grpcClient{cc: fi}

	require.NoError(t, c.WriteEnd(context.Background(), WriteEndRequest{ChunkID: 1, Version: 1}))
	assert.True(t, called)
}
