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

// Package inoderegistry is the inode-keyed owner spec.md §9 calls for:
// "use an inode-keyed table as the owner; the file-handle holds an
// index; the pipeline holds weak references to both." Registry is the
// one thing that holds a strong reference to both the shared
// locator.Locator and the live per-(inode, chunkIndex) writer.Pipeline
// instances; a filehandle.Handle holds only an inode number, and a
// writer.Pipeline depends on the locator only through the narrow
// writer.InodeInvalidator interface Registry satisfies by forwarding.
// Nothing holds a concrete pointer back to the other, so there's no
// mutually-owning pair for the garbage collector (or a careless
// refactor) to trip over.
package inoderegistry

import (
	"context"
	"sync"

	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/locator"
	"github.com/lizardfs-go/chunkclient/internal/masterrpc"
	"github.com/lizardfs-go/chunkclient/internal/writer"
)

// Registry owns the write pipelines for every open (inode, chunkIndex)
// and the single shared locator. Safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	loc         *locator.Locator
	master      masterrpc.Client
	blockWriter writer.BlockWriter
	metrics     common.MetricHandle

	pipelines map[uint32]map[uint32]*writer.Pipeline
}

// New builds a Registry backed by loc, master, and blockWriter. metrics
// may be nil, in which case WriteMetricHandle measurements are discarded.
func New(loc *locator.Locator, master masterrpc.Client, blockWriter writer.BlockWriter, metrics common.MetricHandle) *Registry {
	return &Registry{
		loc:         loc,
		master:      master,
		blockWriter: blockWriter,
		metrics:     metrics,
		pipelines:   make(map[uint32]map[uint32]*writer.Pipeline),
	}
}

// Locator returns the shared locator, for the read path and for
// filehandle.Handle's fresh-lookup-on-mixed-read transition.
func (r *Registry) Locator() *locator.Locator { return r.loc }

// PipelineFor returns the live write pipeline for (inode, chunkIndex),
// creating an Idle one on first use.
func (r *Registry) PipelineFor(inode, chunkIndex uint32) *writer.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	byChunk, ok := r.pipelines[inode]
	if !ok {
		byChunk = make(map[uint32]*writer.Pipeline)
		r.pipelines[inode] = byChunk
	}
	p, ok := byChunk[chunkIndex]
	if !ok {
		p = writer.New(inode, chunkIndex, r.master, r.blockWriter, r.loc, r.metrics)
		byChunk[chunkIndex] = p
	}
	return p
}

// FlushOpenPipelines flushes every non-Idle pipeline open for inode,
// reporting newLength as the post-write file length. Used by
// filehandle.Handle to drain pending writes before a mixed read
// (spec.md §4.4).
func (r *Registry) FlushOpenPipelines(ctx context.Context, inode uint32, newLength uint64) error {
	r.mu.Lock()
	byChunk := r.pipelines[inode]
	open := make([]*writer.Pipeline, 0, len(byChunk))
	for _, p := range byChunk {
		open = append(open, p)
	}
	r.mu.Unlock()

	for _, p := range open {
		if p.State() == writer.Idle {
			continue
		}
		if err := p.Flush(ctx, newLength); err != nil {
			return err
		}
	}
	return nil
}

// Forget drops the pipeline for (inode, chunkIndex), e.g. once a file
// handle referencing it closes. A subsequent PipelineFor call for the
// same key starts over from Idle.
func (r *Registry) Forget(inode, chunkIndex uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byChunk, ok := r.pipelines[inode]
	if !ok {
		return
	}
	delete(byChunk, chunkIndex)
	if len(byChunk) == 0 {
		delete(r.pipelines, inode)
	}
}
