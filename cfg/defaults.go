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

// Default knobs for the chunk client engine, named after the spec's own
// symbols (waveTimeoutMs, writeWindowSize, initWindow, ...) so the mapping
// between config and invariant is obvious.
const (
	DefaultConnectTimeoutMs = 2_000
	DefaultWaveTimeoutMs    = 150
	DefaultTotalTimeoutMs   = 30_000
	DefaultIORetries        = 3

	DefaultWriteWindowSize = 16
	DefaultBlockTimeoutMs  = 10_000

	DefaultInitWindowBytes      = 4 << 20  // 4 MiB
	DefaultMaxWindowBytes       = 64 << 20 // one chunk
	DefaultWindowSizeLimitBytes = 256 << 20
	DefaultRandomThreshold      = 3

	DefaultIOLimitRateBytesPerSec = 0 // 0 == unlimited
	DefaultIOLimitCeilBytes       = 0
	DefaultIOLimitWaitDeadlineMs  = 10_000

	DefaultMetadataTtlSecs         = 60
	DefaultDirEntryCacheMaxEntries = 1 << 16
	DefaultAclCacheMaxEntries      = 1 << 14
	DefaultMetadataSweepBatchSize  = 256

	DefaultLogRotateMaxFileSizeMB   = 512
	DefaultLogRotateBackupFileCount = 10
	DefaultLogRotateCompress       = true
)

// GetDefaultConfig returns the configuration used before any config file or
// flag has been parsed.
func GetDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Severity:        InfoLogSeverity,
			Format:          "text",
			MaxFileSizeMB:   DefaultLogRotateMaxFileSizeMB,
			BackupFileCount: DefaultLogRotateBackupFileCount,
			Compress:        DefaultLogRotateCompress,
		},
		Master: MasterConfig{
			ConnectTimeoutMs: DefaultConnectTimeoutMs,
			RPCTimeoutMs:     DefaultTotalTimeoutMs,
			IORetries:        DefaultIORetries,
		},
		Read: ReadConfig{
			ConnectTimeoutMs: DefaultConnectTimeoutMs,
			WaveTimeoutMs:    DefaultWaveTimeoutMs,
			TotalTimeoutMs:   DefaultTotalTimeoutMs,
			IORetries:        DefaultIORetries,
		},
		Write: WriteConfig{
			WriteWindowSize: DefaultWriteWindowSize,
			BlockTimeoutMs:  DefaultBlockTimeoutMs,
		},
		Readahead: ReadaheadConfig{
			InitWindowBytes:      DefaultInitWindowBytes,
			MaxWindowBytes:       DefaultMaxWindowBytes,
			WindowSizeLimitBytes: DefaultWindowSizeLimitBytes,
			RandomThreshold:      DefaultRandomThreshold,
		},
		IOLimit: IOLimitConfig{
			DefaultRateBytesPerSec: DefaultIOLimitRateBytesPerSec,
			DefaultCeilBytes:       DefaultIOLimitCeilBytes,
			WaitDeadlineMs:         DefaultIOLimitWaitDeadlineMs,
		},
		MetadataCache: MetadataCacheConfig{
			TtlSecs:                 DefaultMetadataTtlSecs,
			DirEntryCacheMaxEntries: DefaultDirEntryCacheMaxEntries,
			AclCacheMaxEntries:      DefaultAclCacheMaxEntries,
			SweepBatchSize:          DefaultMetadataSweepBatchSize,
		},
	}
}
