// Copyright 2011 Google Inc. All Rights Reserved.
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

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	manifestPath string
	mtimeOnUse   bool
	noColor      bool
)

// rootCmd is the fpcheck entry point: a manifest-driven demonstration
// of the fprint decision core, shaped after the teacher's flag-based
// cmd/nin/ninja.go but built on cobra/viper instead of the stdlib flag
// package.
var rootCmd = &cobra.Command{
	Use:   "fpcheck",
	Short: "Drive fprint's freshness decisions over a manifest-described unit graph",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "fpcheck.yaml", "path to the unit manifest")
	rootCmd.PersistentFlags().BoolVar(&mtimeOnUse, "mtime-on-use", false, "touch persisted hash files on every read")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored status output")

	viper.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
	viper.BindPFlag("mtime_on_use", rootCmd.PersistentFlags().Lookup("mtime-on-use"))
	viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(checkCmd, cleanCmd, watchCmd)
}

// loadConfig merges a .fpcheckrc file (if present) under the current
// directory into viper, then resolves the package-level flag variables
// from it so the config file can supply defaults the CLI flags
// override.
func loadConfig() error {
	viper.SetConfigName(".fpcheckrc")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("fpcheck: reading .fpcheckrc: %w", err)
		}
	}
	manifestPath = viper.GetString("manifest")
	mtimeOnUse = viper.GetBool("mtime_on_use")
	noColor = viper.GetBool("no_color")
	if noColor {
		color.NoColor = true
	}
	return nil
}

// checkCmd is the common-case invocation: load the manifest, decide
// freshness bottom-up for every unit, simulate a build for each dirty
// one, and print a summary.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Decide and report freshness for every unit in the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		_, err = runCheck(g, os.Stdout)
		return err
	},
}
