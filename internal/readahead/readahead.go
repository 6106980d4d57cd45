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

// Package readahead tracks one file handle's access pattern and advises
// the read planner (C5) how many extra bytes to prefetch (C9). It
// classifies each feed as sequential or random and grows or shrinks its
// window accordingly, bounded by a throughput estimate derived from a
// short rolling history of recent request sizes.
package readahead

import (
	"container/ring"
	"time"

	"github.com/lizardfs-go/chunkclient/common"
)

const (
	// kRandomThreshold non-sequential feeds in a row collapse the window
	// back to initWindow.
	kRandomThreshold = 3

	// historyLen bounds the rolling throughput sample ring.
	historyLen = 16

	// historyWindow is how far back the throughput estimate looks.
	historyWindow = time.Millisecond
)

// Config bounds the adviser's window growth.
type Config struct {
	InitWindow     int64
	WindowSizeLimit int64
	Timeout        time.Duration
}

// DefaultConfig matches spec.md §4.6's defaults: a single block to start,
// capped at 16 MiB of readahead, against a 1s request timeout.
func DefaultConfig() Config {
	return Config{
		InitWindow:      65536,
		WindowSizeLimit: 16 << 20,
		Timeout:         time.Second,
	}
}

type sample struct {
	at   time.Time
	size int64
}

// Adviser is not safe for concurrent use; callers own one per open file
// handle and serialize feed()/window() the way they serialize reads on
// that handle.
type Adviser struct {
	cfg Config

	lastOffset int64
	lastSize   int64
	haveLast   bool

	window     int64
	maxWindow  int64
	growing    bool // true until the midpoint is crossed, then steps by 2x
	randomRun  int

	history *ring.Ring // of sample
	histLen int

	// vis mirrors every feed so operators can dump a visual read-pattern
	// trace when a window-growth curve looks wrong; ClassifyPattern also
	// cross-checks the sequential/random call this adviser makes from
	// lastOffset/lastSize bookkeeping alone.
	vis *common.ReadPatternVisualizer

	// prefetch holds ranges this adviser has advised the planner (C5) to
	// issue but that haven't been confirmed delivered yet via Feed, so a
	// caller can avoid re-advising the same range twice in flight.
	prefetch common.Queue[prefetchRange]
}

type prefetchRange struct {
	offset int64
	size   int64
}

// New builds an adviser with window and maxWindow both starting at
// cfg.InitWindow.
func New(cfg Config) *Adviser {
	if cfg.InitWindow <= 0 {
		cfg.InitWindow = DefaultConfig().InitWindow
	}
	if cfg.WindowSizeLimit <= 0 {
		cfg.WindowSizeLimit = DefaultConfig().WindowSizeLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Adviser{
		cfg:       cfg,
		window:    cfg.InitWindow,
		maxWindow: cfg.InitWindow,
		growing:   true,
		history:   ring.New(historyLen),
		vis:       common.NewReadPatternVisualizerWithReader("readahead.Adviser"),
		prefetch:  common.NewLinkedListQueue[prefetchRange](),
	}
}

// AdvisePrefetch records that the caller issued a prefetch for
// [offset, offset+size) at the current window size, so a concurrent
// caller can check PendingPrefetch before re-issuing the same range.
func (a *Adviser) AdvisePrefetch(offset, size int64) {
	a.prefetch.Push(prefetchRange{offset: offset, size: size})
}

// PendingPrefetch reports whether any prefetch issued via AdvisePrefetch
// has not yet been consumed by AckPrefetch.
func (a *Adviser) PendingPrefetch() bool {
	return !a.prefetch.IsEmpty()
}

// AckPrefetch drops the oldest outstanding prefetch once its data has
// arrived (or failed), in issue order.
func (a *Adviser) AckPrefetch() {
	if !a.prefetch.IsEmpty() {
		a.prefetch.Pop()
	}
}

// Window reports the current readahead window in bytes.
func (a *Adviser) Window() int64 {
	return a.window
}

// Feed records a completed read of size bytes at offset, re-deriving the
// window for the next prefetch decision. now is supplied by the caller
// (not time.Now) so tests can drive the throughput-bound logic
// deterministically.
func (a *Adviser) Feed(now time.Time, offset, size int64) {
	a.recordSample(now, size)
	a.rederiveMaxWindow(now)
	a.vis.AcceptRange(offset, offset+size)

	sequential := a.haveLast && offset == a.lastOffset+a.lastSize
	a.lastOffset = offset
	a.lastSize = size
	a.haveLast = true

	if sequential {
		a.randomRun = 0
		midpoint := a.maxWindow / 2
		if a.growing && a.window >= midpoint {
			a.growing = false
		}
		if a.growing {
			a.window *= 4
		} else {
			a.window *= 2
		}
		if a.window > a.maxWindow {
			a.window = a.maxWindow
		}
		return
	}

	a.randomRun++
	if a.randomRun >= kRandomThreshold {
		a.window = a.cfg.InitWindow
		a.growing = true
	}
}

func (a *Adviser) recordSample(now time.Time, size int64) {
	a.history.Value = sample{at: now, size: size}
	a.history = a.history.Next()
	if a.histLen < historyLen {
		a.histLen++
	}
}

// rederiveMaxWindow estimates throughput from samples within the last
// historyWindow and sets maxWindow = 2*throughput*timeout, capped by
// WindowSizeLimit (spec.md §4.6's "throughput bound").
func (a *Adviser) rederiveMaxWindow(now time.Time) {
	var total int64
	var oldest time.Time
	found := false

	r := a.history
	for i := 0; i < a.histLen; i++ {
		r = r.Prev()
		s, ok := r.Value.(sample)
		if !ok || now.Sub(s.at) > historyWindow {
			break
		}
		total += s.size
		oldest = s.at
		found = true
	}

	if !found {
		return
	}
	elapsed := now.Sub(oldest)
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	throughput := float64(total) / elapsed.Seconds()
	bound := int64(2 * throughput * a.cfg.Timeout.Seconds())
	if bound < a.cfg.InitWindow {
		bound = a.cfg.InitWindow
	}
	if bound > a.cfg.WindowSizeLimit {
		bound = a.cfg.WindowSizeLimit
	}
	a.maxWindow = bound
	if a.window > a.maxWindow {
		a.window = a.maxWindow
	}
}

// Pattern reports whether the ranges fed so far look sequential once
// sorted by offset, and how many gaps separate them, for diagnostics and
// tests that want to corroborate the adviser's own sequential/random
// bookkeeping against an independent view of the access trace.
func (a *Adviser) Pattern() (sequential bool, gaps int) {
	return a.vis.ClassifyPattern()
}

// DumpGraph renders the fed ranges as a text graph, for operators
// debugging a misbehaving window-growth curve.
func (a *Adviser) DumpGraph() string {
	return a.vis.DumpGraph()
}
