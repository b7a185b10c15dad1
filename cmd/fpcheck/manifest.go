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

	"github.com/maruel/fprint"
	"gopkg.in/yaml.v3"
)

// manifestFile is the root of a fpcheck manifest: a flat list of units
// and the edges between them, loaded with gopkg.in/yaml.v3.
type manifestFile struct {
	CompilerVersion string           `yaml:"compiler_version"`
	TargetRoot      string           `yaml:"target_root"`
	Units           []manifestUnit   `yaml:"units"`
}

type manifestUnit struct {
	Package  string            `yaml:"package"`
	Target   string            `yaml:"target"`
	Mode     string            `yaml:"mode"`
	Profile  string            `yaml:"profile"`
	Root     string            `yaml:"root"`
	Local    bool              `yaml:"local"`
	Version  string            `yaml:"version"`
	Features string            `yaml:"features"`
	Flags    []string          `yaml:"flags"`
	Sources  []string          `yaml:"sources"`
	Output   string            `yaml:"output"`
	DepInfo  string            `yaml:"dep_info"`
	Deps     []manifestDepEdge `yaml:"deps"`
}

type manifestDepEdge struct {
	// Package/Target/Mode/Profile select the dependency unit; Mode and
	// Profile default to the referencing unit's own values when empty,
	// since most edges point within the same profile.
	Package          string `yaml:"package"`
	Target           string `yaml:"target"`
	Mode             string `yaml:"mode"`
	Profile          string `yaml:"profile"`
	ExternName       string `yaml:"extern_name"`
	Public           bool   `yaml:"public"`
	Binary           bool   `yaml:"binary"`
	OnlyRequiresMeta bool   `yaml:"only_requires_meta"`
}

// parseMode maps a manifest's textual mode to fprint.CompileMode. An
// empty string means "build", the common case manifests leave out.
func parseMode(s string) (fprint.CompileMode, error) {
	switch s {
	case "", "build":
		return fprint.ModeBuild, nil
	case "test":
		return fprint.ModeTest, nil
	case "doc":
		return fprint.ModeDoc, nil
	case "doctest":
		return fprint.ModeDocTest, nil
	case "run-custom-build":
		return fprint.ModeRunCustomBuild, nil
	default:
		return 0, fmt.Errorf("fpcheck: unknown unit mode %q", s)
	}
}

// LoadManifest reads a YAML manifest from path and builds the in-memory
// graph it describes. Relative unit roots are resolved against the
// manifest file's own directory.
func LoadManifest(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fpcheck: reading manifest: %w", err)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("fpcheck: parsing manifest: %w", err)
	}
	if mf.CompilerVersion == "" {
		return nil, fmt.Errorf("fpcheck: manifest is missing compiler_version")
	}
	if mf.TargetRoot == "" {
		return nil, fmt.Errorf("fpcheck: manifest is missing target_root")
	}

	base := filepath.Dir(path)
	targetRoot := mf.TargetRoot
	if !filepath.IsAbs(targetRoot) {
		targetRoot = filepath.Join(base, targetRoot)
	}

	g := NewGraph(mf.CompilerVersion, targetRoot)

	// First pass: register every node so dependency edges (which may
	// reference a unit declared later in the file) resolve regardless
	// of manifest order.
	type pending struct {
		id   fprint.UnitID
		deps []manifestDepEdge
	}
	var work []pending

	for _, mu := range mf.Units {
		mode, err := parseMode(mu.Mode)
		if err != nil {
			return nil, err
		}
		id := fprint.UnitID{Package: mu.Package, Target: mu.Target, Mode: mode, Profile: mu.Profile}

		root := mu.Root
		if root != "" && !filepath.IsAbs(root) {
			root = filepath.Join(base, root)
		}

		g.AddNode(&Node{
			ID:         id,
			PackageDir: root,
			Local:      mu.Local,
			Features:   mu.Features,
			Flags:      mu.Flags,
			Version:    mu.Version,
			Sources:    mu.Sources,
			Output:     mu.Output,
			DepInfo:    mu.DepInfo,
		})
		work = append(work, pending{id: id, deps: mu.Deps})
	}

	for _, w := range work {
		n := g.Nodes[w.id]
		for _, d := range w.deps {
			mode := w.id.Mode
			if d.Mode != "" {
				var err error
				mode, err = parseMode(d.Mode)
				if err != nil {
					return nil, err
				}
			}
			profile := w.id.Profile
			if d.Profile != "" {
				profile = d.Profile
			}
			depID := fprint.UnitID{Package: d.Package, Target: d.Target, Mode: mode, Profile: profile}
			if _, ok := g.Nodes[depID]; !ok {
				return nil, fmt.Errorf("fpcheck: unit %s/%s depends on undeclared unit %s/%s", w.id.Package, w.id.Target, depID.Package, depID.Target)
			}
			n.DepUnits = append(n.DepUnits, DepRef{
				Unit:             depID,
				ExternName:       d.ExternName,
				Public:           d.Public,
				IsBinary:         d.Binary,
				OnlyRequiresMeta: d.OnlyRequiresMeta,
			})
		}
	}

	return g, nil
}
