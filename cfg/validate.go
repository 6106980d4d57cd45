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

package cfg

import (
	"fmt"
	"math"
	"time"
)

const (
	MetadataCacheTtlSecsInvalidValueError = "the value of ttl-secs for metadata-cache can't be less than -1"
	MetadataCacheTtlSecsTooHighError      = "the value of ttl-secs in metadata-cache is too high to be supported"
	// MaxSupportedTtlInSeconds is the maximum multiple of seconds representable by time.Duration.
	MaxSupportedTtlInSeconds = math.MaxInt64 / int64(time.Second)
)

func isValidMetadataConfig(c *MetadataCacheConfig) error {
	if c.TtlSecs < -1 {
		return fmt.Errorf(MetadataCacheTtlSecsInvalidValueError)
	}
	if c.TtlSecs > MaxSupportedTtlInSeconds {
		return fmt.Errorf(MetadataCacheTtlSecsTooHighError)
	}
	if c.DirEntryCacheMaxEntries < 0 {
		return fmt.Errorf("dir-entry-cache-max-entries must be >= 0")
	}
	if c.AclCacheMaxEntries < 0 {
		return fmt.Errorf("acl-cache-max-entries must be >= 0")
	}
	return nil
}

func isValidReadConfig(c *ReadConfig) error {
	if c.WaveTimeoutMs <= 0 {
		return fmt.Errorf("read.wave-timeout-ms must be > 0")
	}
	if c.TotalTimeoutMs < c.WaveTimeoutMs {
		return fmt.Errorf("read.total-timeout-ms must be >= read.wave-timeout-ms")
	}
	if c.IORetries < 0 {
		return fmt.Errorf("read.io-retries must be >= 0")
	}
	return nil
}

func isValidWriteConfig(c *WriteConfig) error {
	if c.WriteWindowSize <= 0 {
		return fmt.Errorf("write.write-window-size must be > 0")
	}
	return nil
}

func isValidReadaheadConfig(c *ReadaheadConfig) error {
	if c.InitWindowBytes <= 0 {
		return fmt.Errorf("readahead.init-window-bytes must be > 0")
	}
	if c.MaxWindowBytes < c.InitWindowBytes {
		return fmt.Errorf("readahead.max-window-bytes must be >= readahead.init-window-bytes")
	}
	if c.WindowSizeLimitBytes < c.MaxWindowBytes {
		return fmt.Errorf("readahead.window-size-limit-bytes must be >= readahead.max-window-bytes")
	}
	if c.RandomThreshold <= 0 {
		return fmt.Errorf("readahead.random-threshold must be > 0")
	}
	return nil
}

func isValidIOLimitConfig(c *IOLimitConfig) error {
	if c.DefaultRateBytesPerSec < 0 {
		return fmt.Errorf("io-limit.default-rate-bytes-per-sec must be >= 0")
	}
	if c.DefaultCeilBytes < 0 {
		return fmt.Errorf("io-limit.default-ceil-bytes must be >= 0")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidReadConfig(&config.Read); err != nil {
		return fmt.Errorf("error parsing read config: %w", err)
	}
	if err := isValidWriteConfig(&config.Write); err != nil {
		return fmt.Errorf("error parsing write config: %w", err)
	}
	if err := isValidReadaheadConfig(&config.Readahead); err != nil {
		return fmt.Errorf("error parsing readahead config: %w", err)
	}
	if err := isValidIOLimitConfig(&config.IOLimit); err != nil {
		return fmt.Errorf("error parsing io-limit config: %w", err)
	}
	if err := isValidMetadataConfig(&config.MetadataCache); err != nil {
		return fmt.Errorf("error parsing metadata-cache config: %w", err)
	}
	return nil
}
