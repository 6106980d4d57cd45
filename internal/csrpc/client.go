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

	"google.golang.org/grpc"
)

// ChunkserverClient is the data-plane RPC surface the read executor (C6)
// and write coordinator (C8) issue requests through.
type ChunkserverClient interface {
	Read(ctx context.Context, req ReadRequest) (ReadResponse, error)
	Prefetch(ctx context.Context, req PrefetchRequest) error
	WriteInit(ctx context.Context, req WriteInitRequest) (WriteInitResponse, error)
	WriteData(ctx context.Context, req WriteDataRequest) (WriteDataResponse, error)
	WriteStatus(ctx context.Context, req WriteStatusRequest) (WriteStatusResponse, error)
	WriteEnd(ctx context.Context, req WriteEndRequest) error
	Test(ctx context.Context, req TestRequest) (TestResponse, error)
}

const (
	methodRead        = "/lizardfs.Chunkserver/Read"
	methodPrefetch    = "/lizardfs.Chunkserver/Prefetch"
	methodWriteInit   = "/lizardfs.Chunkserver/WriteInit"
	methodWriteData   = "/lizardfs.Chunkserver/WriteData"
	methodWriteStatus = "/lizardfs.Chunkserver/WriteStatus"
	methodWriteEnd    = "/lizardfs.Chunkserver/WriteEnd"
	methodTest        = "/lizardfs.Chunkserver/Test"
)

type grpcClient struct {
	cc invoker
}

// NewClient builds a ChunkserverClient that issues every RPC over cc, a
// connection internal/connpool (C3) dialed and is keeping warm.
func NewClient(cc *grpc.ClientConn) ChunkserverClient {
	return &grpcClient{cc: cc}
}

func (c *grpcClient) Read(ctx context.Context, req ReadRequest) (ReadResponse, error) {
	var resp ReadResponse
	err := call(ctx, c.cc, methodRead, req, &resp)
	return resp, err
}

func (c *grpcClient) Prefetch(ctx context.Context, req PrefetchRequest) error {
	return call(ctx, c.cc, methodPrefetch, req, nil)
}

func (c *grpcClient) WriteInit(ctx context.Context, req WriteInitRequest) (WriteInitResponse, error) {
	var resp WriteInitResponse
	err := call(ctx, c.cc, methodWriteInit, req, &resp)
	return resp, err
}

func (c *grpcClient) WriteData(ctx context.Context, req WriteDataRequest) (WriteDataResponse, error) {
	var resp WriteDataResponse
	err := call(ctx, c.cc, methodWriteData, req, &resp)
	return resp, err
}

func (c *grpcClient) WriteStatus(ctx context.Context, req WriteStatusRequest) (WriteStatusResponse, error) {
	var resp WriteStatusResponse
	err := call(ctx, c.cc, methodWriteStatus, req, &resp)
	return resp, err
}

func (c *grpcClient) WriteEnd(ctx context.Context, req WriteEndRequest) error {
	return call(ctx, c.cc, methodWriteEnd, req, nil)
}

func (c *grpcClient) Test(ctx context.Context, req TestRequest) (TestResponse, error) {
	var resp TestResponse
	err := call(ctx, c.cc, methodTest, req, &resp)
	return resp, err
}

var _ ChunkserverClient = (*grpcClient)(nil)
