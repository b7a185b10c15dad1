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
	"time"
)

// BuildScriptOutput is the parsed set of directives a build script left
// behind the last time it ran: the paths it asked to be rerun on
// (rerun-if-changed), the environment variables it asked to be rerun on
// (rerun-if-env-changed, with the value captured at declaration time),
// and the location of its own structured-output file. A nil
// *BuildScriptOutput means the script has never run.
type BuildScriptOutput struct {
	// StructuredOutputFile is the target-root-relative location of the
	// file the build script writes its directives to.
	StructuredOutputFile string
	// RerunIfChanged holds package-root-relative paths.
	RerunIfChanged []string
	// RerunIfEnvChanged maps variable name to captured value (nil if the
	// variable was unset at capture time).
	RerunIfEnvChanged map[string]*string
}

// empty reports whether no directives were recorded at all, the signal
// that triggers the package-fingerprint fallback in Phase A.
func (o *BuildScriptOutput) empty() bool {
	return o == nil || (len(o.RerunIfChanged) == 0 && len(o.RerunIfEnvChanged) == 0)
}

func (o *BuildScriptOutput) local() []LocalFingerprint {
	local := []LocalFingerprint{{
		Kind:   LocalRerunIfChanged,
		Output: o.StructuredOutputFile,
		Paths:  append([]string(nil), o.RerunIfChanged...),
	}}
	for _, v := range sortedKeys(o.RerunIfEnvChanged) {
		val := o.RerunIfEnvChanged[v]
		local = append(local, LocalFingerprint{Kind: LocalRerunIfEnvChanged, EnvVar: v, EnvValue: val})
	}
	return local
}

func sortedKeys(m map[string]*string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic regardless of map iteration order: the hash must not
	// depend on it.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// overriddenBuildScriptFingerprint builds the Fingerprint for a build
// script unit entirely replaced by a configuration-provided output, per
// §4.7 "Overridden" / scenario S7.
func overriddenBuildScriptFingerprint(payload string) *Fingerprint {
	tok := ToHex(hashString64(payload))
	f := NewFingerprint([]LocalFingerprint{{Kind: LocalPrecalculated, Precalculated: tok}})
	f.Outputs = nil
	f.fsStatus = FsStatus{Kind: FsUpToDate, Mtimes: map[string]time.Time{}}
	return f
}

// calculateRunCustomBuild builds the Fingerprint for a build-script
// execution unit, dispatching to the overridden or real path per §4.7.
func (c *Calculator) calculateRunCustomBuild(unit UnitID) (*Fingerprint, error) {
	if payload, overridden := c.ctx.BuildScriptOverride(unit); overridden {
		return overriddenBuildScriptFingerprint(payload), nil
	}
	return c.calculateRunCustomBuildReal(unit)
}

// calculateRunCustomBuildReal implements §4.7's "Real" Phase A: using
// whatever directives were recorded from a previous run, build either a
// package-fingerprint precalculated local or a rerun-if-… local set.
func (c *Calculator) calculateRunCustomBuildReal(unit UnitID) (*Fingerprint, error) {
	deps, err := c.calculateDeps(unit)
	if err != nil {
		return nil, err
	}

	prev := c.ctx.BuildScriptOutputs(unit)

	var local []LocalFingerprint
	var outputs []string
	if prev.empty() {
		tok, err := c.packageFingerprint(unit)
		if err != nil {
			return nil, err
		}
		local = []LocalFingerprint{{Kind: LocalPrecalculated, Precalculated: tok}}
	} else {
		local = prev.local()
		outputs = []string{prev.StructuredOutputFile}
	}

	f := NewFingerprint(local)
	f.Deps = deps
	f.SortDeps()
	f.Outputs = outputs
	c.fillScalars(f, unit)
	return f, nil
}

// ReparseBuildScriptOutput implements §4.7's Phase B: recompute and
// swap in local from the just-produced structured-output file, on the
// worker thread that ran the build script. It cannot compute a package
// fingerprint (no build-context access there): if the newly parsed
// directive set is empty where Phase A's was not, the existing local
// value is left untouched rather than recomputed, a known soft spot in
// this lifecycle — see the package's design notes.
func (c *Calculator) ReparseBuildScriptOutput(f *Fingerprint, newOutput *BuildScriptOutput) {
	if newOutput.empty() {
		return
	}
	f.SetLocal(newOutput.local())
	f.Outputs = []string{newOutput.StructuredOutputFile}
}

// packageFingerprint returns the package-level fingerprint token used
// as Phase A's Precalculated payload when no rerun-if directives were
// recorded.
func (c *Calculator) packageFingerprint(unit UnitID) (string, error) {
	src := c.ctx.PackageSource(unit)
	tok, err := src.Fingerprint(unit)
	if err != nil {
		return "", fmt.Errorf("fprint: package fingerprint for %v: %w", unit, err)
	}
	return tok, nil
}

// fillScalars populates the scalar fingerprint fields common to every
// unit kind from the build context, per §4.5.
func (c *Calculator) fillScalars(f *Fingerprint, unit UnitID) {
	ti := c.ctx.TargetInfo(unit)
	f.RustcHash = hashString64(c.ctx.CompilerVersion())
	f.Target = ti.TargetHash
	f.Features = ti.Features
	f.Profile = ti.ProfileHash
	f.Metadata = ti.MetadataHash
	f.Config = ti.ConfigHash
	f.RustFlags = ti.Flags
	f.Path = c.ctx.SourcePathHash(unit)
}
