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
	"fmt"

	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "checkconfig",
	Short: "Validate the resolved configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("master address: %s\n", EngineConfig.Master.Address)
		fmt.Printf("write window size: %d\n", EngineConfig.Write.WriteWindowSize)
		fmt.Printf("io-limit default rate: %.0f bytes/sec\n", EngineConfig.IOLimit.DefaultRateBytesPerSec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
