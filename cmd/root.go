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

// Package cmd implements the chunkclient command-line entrypoint: it loads
// configuration, stands up the logger and metrics, and dispatches to
// diagnostic subcommands (checkconfig and catchunk) that exercise the engine
// outside of an embedding process.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lizardfs-go/chunkclient/cfg"
	"github.com/lizardfs-go/chunkclient/common"
	"github.com/lizardfs-go/chunkclient/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// EngineConfig is populated by initConfig before any subcommand runs.
	EngineConfig cfg.Config

	// EngineMetrics is the MetricHandle every subcommand that builds an
	// engine component should thread through. Falls back to a no-op
	// handle if the OTel SDK cannot be wired up (no collector configured,
	// etc.), so a subcommand never has to nil-check it itself.
	EngineMetrics common.MetricHandle
)

var rootCmd = &cobra.Command{
	Use:   "chunkclient",
	Short: "Diagnostic CLI for the chunk client engine",
	Long: `chunkclient drives the chunk client engine (locator, planner,
executor, write coordinator, and friends) against a running master and
chunkserver set, for debugging and scripted verification outside of an
embedding process.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.ValidateConfig(&EngineConfig); err != nil {
			return err
		}
		if err := logger.InitLogFile(EngineConfig.Logging); err != nil {
			return err
		}
		metrics, err := common.NewOTelMetrics()
		if err != nil {
			logger.Warnf("metrics setup failed, continuing without them: %v", err)
			metrics = common.NewNoopMetrics()
		}
		EngineMetrics = metrics
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	EngineConfig = cfg.GetDefaultConfig()

	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&EngineConfig)
		return
	}

	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&EngineConfig)
}
