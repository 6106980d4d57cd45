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

// Package masterrpc is the client side of every RPC the engine issues to
// the master: chunk read/write/truncate bookkeeping, the namespace
// operations, ACLs, locks, and IO-limit configuration. The master speaks a
// custom binary protocol in the original implementation; absent a .proto
// schema to generate stubs from, requests and responses here are plain Go
// structs carried inside anypb.Any over a grpc.ClientConn, which keeps the
// transport on real gRPC framing and flow control without hand-authoring
// fragile generated protobuf types.
package masterrpc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
)

// invoker is the subset of *grpc.ClientConn this package depends on, so
// tests can substitute a fake without standing up a real server.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
}

func call(ctx context.Context, inv invoker, method string, req, resp interface{}) error {
	payload, err := encode(req)
	if err != nil {
		return fmt.Errorf("masterrpc: encoding %s request: %w", method, err)
	}
	reqAny := &anypb.Any{TypeUrl: method, Value: payload}
	respAny := &anypb.Any{}
	if err := inv.Invoke(ctx, method, reqAny, respAny); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := decode(respAny.Value, resp); err != nil {
		return fmt.Errorf("masterrpc: decoding %s response: %w", method, err)
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
