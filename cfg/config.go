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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration for the chunk client engine: master
// address, RPC timeouts, retry policy, write pipeline sizing, readahead
// bounds, bandwidth limiter defaults, and cache sizing. It is unmarshalled
// from YAML (via viper) and may be overridden by command-line flags bound
// in BindFlags.
type Config struct {
	AppName string `yaml:"app-name"`

	Logging LoggingConfig `yaml:"logging"`

	Master MasterConfig `yaml:"master"`

	Read ReadConfig `yaml:"read"`

	Write WriteConfig `yaml:"write"`

	Readahead ReadaheadConfig `yaml:"readahead"`

	IOLimit IOLimitConfig `yaml:"io-limit"`

	MetadataCache MetadataCacheConfig `yaml:"metadata-cache"`

	Debug DebugConfig `yaml:"debug"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`

	// FilePath is where logs are written. Empty means stderr.
	FilePath string `yaml:"file-path"`

	MaxFileSizeMB int `yaml:"log-rotate-max-file-size-mb"`

	BackupFileCount int `yaml:"log-rotate-backup-file-count"`

	Compress bool `yaml:"log-rotate-compress"`
}

// MasterConfig describes how to reach the metadata master and how long the
// session handshake (GET_RANDOM/NEW_SESSION/RECONNECT) may take.
type MasterConfig struct {
	Address string `yaml:"address"`

	ConnectTimeoutMs int64 `yaml:"connect-timeout-ms"`

	RPCTimeoutMs int64 `yaml:"rpc-timeout-ms"`

	IORetries int `yaml:"io-retries"`
}

// ReadConfig tunes the read planner/executor (C5/C6).
type ReadConfig struct {
	ConnectTimeoutMs int64 `yaml:"connect-timeout-ms"`

	WaveTimeoutMs int64 `yaml:"wave-timeout-ms"`

	TotalTimeoutMs int64 `yaml:"total-timeout-ms"`

	IORetries int `yaml:"io-retries"`
}

// WriteConfig tunes the write coordinator (C8).
type WriteConfig struct {
	WriteWindowSize int `yaml:"write-window-size"`

	BlockTimeoutMs int64 `yaml:"block-timeout-ms"`
}

// ReadaheadConfig tunes the adaptive readahead adviser (C9).
type ReadaheadConfig struct {
	InitWindowBytes int64 `yaml:"init-window-bytes"`

	MaxWindowBytes int64 `yaml:"max-window-bytes"`

	WindowSizeLimitBytes int64 `yaml:"window-size-limit-bytes"`

	RandomThreshold int `yaml:"random-threshold"`
}

// IOLimitConfig seeds the default bandwidth group used when the master has
// not yet pushed an IOLIMITS_CONFIG (C11).
type IOLimitConfig struct {
	DefaultRateBytesPerSec float64 `yaml:"default-rate-bytes-per-sec"`

	DefaultCeilBytes float64 `yaml:"default-ceil-bytes"`

	WaitDeadlineMs int64 `yaml:"wait-deadline-ms"`
}

// MetadataCacheConfig sizes the directory-entry (C12) and ACL (C13) caches.
type MetadataCacheConfig struct {
	TtlSecs int64 `yaml:"ttl-secs"`

	DirEntryCacheMaxEntries int `yaml:"dir-entry-cache-max-entries"`

	AclCacheMaxEntries int `yaml:"acl-cache-max-entries"`

	SweepBatchSize int `yaml:"sweep-batch-size"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`
}

// BindFlags registers the command-line flags that mirror Config and binds
// them into viper so that flag > config-file > default precedence holds.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	bind := func(flag, viperKey string) error {
		return viper.BindPFlag(viperKey, flagSet.Lookup(flag))
	}

	flagSet.StringP("app-name", "", "", "The application name of this client.")
	if err = bind("app-name", "app-name"); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = bind("log-severity", "logging.severity"); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log output format: text or json.")
	if err = bind("log-format", "logging.format"); err != nil {
		return err
	}

	flagSet.StringP("master-address", "", "", "Address of the metadata master.")
	if err = bind("master-address", "master.address"); err != nil {
		return err
	}

	flagSet.IntP("write-window-size", "", DefaultWriteWindowSize, "Number of in-flight write blocks per chunk stream.")
	if err = bind("write-window-size", "write.write-window-size"); err != nil {
		return err
	}

	flagSet.BoolP("debug-invariants", "", false, "Exit when internal invariants are violated.")
	if err = bind("debug-invariants", "debug.exit-on-invariant-violation"); err != nil {
		return err
	}

	return nil
}
