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

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lizardfs-go/chunkclient/clock"
	"github.com/lizardfs-go/chunkclient/internal/connpool"
	"github.com/lizardfs-go/chunkclient/internal/csclient"
	"github.com/lizardfs-go/chunkclient/internal/csstats"
	"github.com/lizardfs-go/chunkclient/internal/engine"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
	"github.com/lizardfs-go/chunkclient/internal/planner"
	"github.com/lizardfs-go/chunkclient/internal/readahead"
)

var (
	catChunkInode      uint32
	catChunkOffset     int64
	catChunkLength     int
	catChunkDialPerSec float64
)

var catChunkCmd = &cobra.Command{
	Use:   "catchunk",
	Short: "Read a byte range of one inode through the engine's read path and print it to stdout",
	Long: `catchunk dials the configured master and reads [offset, offset+length)
of inode through the full C4->C5->C6 read path (bandwidth limiting is left
disabled; it exercises the locator/planner/executor wiring, not session
accounting), writing the result to stdout. It confines the read to a single
chunk, same as Reader.ReadAt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EngineConfig.Master.Address == "" {
			return fmt.Errorf("master address not configured; pass --master-address or set master.address")
		}

		ctx := cmd.Context()
		masterConn, err := grpc.NewClient(EngineConfig.Master.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dialing master at %s: %w", EngineConfig.Master.Address, err)
		}
		defer masterConn.Close()
		master := masterrpc.NewClient(masterConn, EngineMetrics)

		dial := func(ctx context.Context, address string) (*grpc.ClientConn, error) {
			return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}
		pool := connpool.New(dial, time.Duration(EngineConfig.Master.ConnectTimeoutMs)*time.Millisecond, catChunkDialPerSec, clock.RealClock{})
		stats := csstats.New(clock.RealClock{}, int64(time.Minute))
		cs := csclient.New(pool, stats, EngineMetrics)

		cfg := engine.DefaultConfig()
		cfg.PlannerConfig = planner.Config{WaveTimeoutMs: EngineConfig.Read.WaveTimeoutMs}
		cfg.ReadTimeout = time.Duration(EngineConfig.Read.TotalTimeoutMs) * time.Millisecond

		e := engine.New(cfg, master, cs, stats, nil, EngineMetrics)
		r := e.NewReader(catChunkInode, readahead.Config{
			InitWindow:      EngineConfig.Readahead.InitWindowBytes,
			WindowSizeLimit: EngineConfig.Readahead.WindowSizeLimitBytes,
			Timeout:         time.Duration(EngineConfig.Read.TotalTimeoutMs) * time.Millisecond,
		})

		data, err := r.ReadAt(ctx, time.Now(), catChunkOffset, catChunkLength)
		if err != nil {
			return fmt.Errorf("reading inode %d at offset %d: %w", catChunkInode, catChunkOffset, err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	catChunkCmd.Flags().Uint32Var(&catChunkInode, "inode", 0, "Inode to read from")
	catChunkCmd.Flags().Int64Var(&catChunkOffset, "offset", 0, "Byte offset to start reading at")
	catChunkCmd.Flags().IntVar(&catChunkLength, "length", 0, "Number of bytes to read, confined to one chunk")
	catChunkCmd.Flags().Float64Var(&catChunkDialPerSec, "max-dials-per-sec", 5, "Cap on concurrent chunkserver dial rate")
	rootCmd.AddCommand(catChunkCmd)
}
