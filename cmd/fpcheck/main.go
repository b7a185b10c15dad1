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

// Command fpcheck is a small standalone driver for the fprint
// incremental rebuild core: it loads a YAML manifest describing a unit
// graph and reports, or watches for, freshness decisions over it.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if noColorEnv := os.Getenv("NO_COLOR"); noColorEnv != "" {
		color.NoColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
