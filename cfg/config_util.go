// Copyright 2024 Google LLC
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

package cfg

import "runtime"

// DefaultMaxParallelWaveRequests bounds how many chunkserver requests the
// read executor (C6) may have in flight across all waves of a single plan
// when the config does not otherwise constrain it.
func DefaultMaxParallelWaveRequests() int {
	return max(16, 2*runtime.NumCPU())
}

// IsBandwidthLimited reports whether a non-trivial default bandwidth group
// (C11) should be installed at startup.
func IsBandwidthLimited(c *Config) bool {
	return c.IOLimit.DefaultRateBytesPerSec > 0
}
