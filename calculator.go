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

package fprint

import (
	"fmt"
	"hash/maphash"
	"sync"
)

// Calculator constructs Fingerprints from a BuildContext, memoizing one
// per unit for the lifetime of a single build. See §4.5.
type Calculator struct {
	ctx BuildContext

	mu   sync.Mutex
	memo map[UnitID]*Fingerprint
}

// NewCalculator returns a Calculator backed by ctx.
func NewCalculator(ctx BuildContext) *Calculator {
	return &Calculator{
		ctx:  ctx,
		memo: make(map[UnitID]*Fingerprint),
	}
}

// Fingerprint returns unit's Fingerprint, constructing and memoizing it
// (and recursively, its dependencies') if this is the first request for
// unit in this build. Construction proceeds dependency-first, per §5's
// ordering guarantee.
func (c *Calculator) Fingerprint(unit UnitID) (*Fingerprint, error) {
	c.mu.Lock()
	if f, ok := c.memo[unit]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	var f *Fingerprint
	var err error
	if unit.Mode == ModeRunCustomBuild {
		f, err = c.calculateRunCustomBuild(unit)
	} else {
		f, err = c.calculateNormal(unit)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.memo[unit]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.memo[unit] = f
	c.mu.Unlock()
	return f, nil
}

// calculateNormal builds the Fingerprint for a non-build-script unit,
// per §4.5 "Normal (non-build-script) unit".
func (c *Calculator) calculateNormal(unit UnitID) (*Fingerprint, error) {
	deps, err := c.calculateDeps(unit)
	if err != nil {
		return nil, err
	}

	var local LocalFingerprint
	if unit.Mode == ModeDoc {
		src := c.ctx.PackageSource(unit)
		tok, err := src.Fingerprint(unit)
		if err != nil {
			return nil, fmt.Errorf("fprint: package fingerprint for %v: %w", unit, err)
		}
		local = LocalFingerprint{Kind: LocalPrecalculated, Precalculated: tok}
	} else {
		local = LocalFingerprint{Kind: LocalCheckDepInfo, DepInfo: c.ctx.DepInfoLoc(unit)}
	}

	f := NewFingerprint([]LocalFingerprint{local})
	f.Deps = deps
	f.SortDeps()
	f.Outputs = trackedOutputs(c.ctx.Outputs(unit))
	c.fillScalars(f, unit)

	return f, nil
}

// calculateDeps recursively fingerprints unit's dependencies, omitting
// edges to binary targets, per §4.5.
func (c *Calculator) calculateDeps(unit UnitID) ([]DepEdge, error) {
	var edges []DepEdge
	for _, d := range c.ctx.Deps(unit) {
		if d.IsBinary {
			continue
		}
		depFp, err := c.Fingerprint(d.Unit)
		if err != nil {
			return nil, fmt.Errorf("fprint: dependency %v: %w", d.Unit, err)
		}
		edges = append(edges, DepEdge{
			PkgID:            c.ctx.PackageIdentityHash(d.Unit),
			Name:             d.ExternName,
			Public:           d.Public,
			OnlyRequiresMeta: d.OnlyRequiresMeta,
			Fingerprint:      depFp,
		})
	}
	return edges, nil
}

// trackedOutputs filters out debug-info and auxiliary flavored outputs,
// per §3's "excluding debug-info and auxiliary flavors".
func trackedOutputs(outs []Output) []string {
	var paths []string
	for _, o := range outs {
		if o.Flavor == FlavorDebugInfo || o.Flavor == FlavorAuxiliary {
			continue
		}
		paths = append(paths, o.Path)
	}
	return paths
}

// hashString64 hashes a single string in isolation; used for scalar
// fields supplied as raw strings by the build context (the compiler
// version string) rather than pre-hashed.
func hashString64(s string) uint64 {
	return combinedHash(func(h *maphash.Hash) {
		HashString(h, s)
	})
}
