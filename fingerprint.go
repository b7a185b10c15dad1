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
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DepEdge is one outgoing dependency edge recorded in a Fingerprint,
// per §3's DepEdge record.
type DepEdge struct {
	// PkgID is the 64-bit hash of the dependency's package identity:
	// the package name alone for local path packages (rename
	// insensitivity), the full identity otherwise.
	PkgID uint64
	// Name is the extern-crate-name this dependency is imported under.
	Name string
	// Public records whether the dependency is re-exported.
	Public bool
	// OnlyRequiresMeta records whether this edge is satisfied by the
	// dependency's metadata-only artifact. Deliberately excluded from
	// the hash (static edge property); consumed only by CheckFilesystem.
	OnlyRequiresMeta bool
	// Fingerprint is a shared handle to the dependency unit's
	// Fingerprint. Go's garbage collector plays the role Rust's Arc
	// plays in the original: any number of dependents may hold this
	// pointer and the object outlives all of them as needed, with no
	// explicit refcounting.
	Fingerprint *Fingerprint
}

// FsStatusKind tags Fingerprint.fsStatus.
type FsStatusKind int

const (
	// FsStale means the unit's freshness has not been established, or a
	// staleness probe found a reason to rebuild.
	FsStale FsStatusKind = iota
	// FsUpToDate means CheckFilesystem found every declared output and
	// local input to be no newer than its dependencies.
	FsUpToDate
)

// FsStatus is Fingerprint's filesystem-status field. Never persisted
// (mtimes are excluded from the hash and from serialization).
type FsStatus struct {
	Kind FsStatusKind
	// Mtimes maps output path to modification time, populated only when
	// Kind is FsUpToDate.
	Mtimes map[string]time.Time
}

// Fingerprint is the composite, hashable summary of a unit's logical
// inputs plus its transitive dependency fingerprints. See §3/§4.4.
type Fingerprint struct {
	RustcHash    uint64
	Features     string
	Target       uint64
	Profile      uint64
	Path         uint64
	Metadata     uint64
	Config       uint64
	RustFlags    []string
	Deps         []DepEdge
	Outputs      []string

	mu    sync.Mutex
	local []LocalFingerprint

	hashMu       sync.Mutex
	memoizedHash *uint64

	fsStatus FsStatus
}

// NewFingerprint constructs a Fingerprint with the given local variants
// set and fs status Stale, per §4.5's "Initial fs_status = Stale". The
// scalar fields, Deps and Outputs start zero; callers fill them in.
func NewFingerprint(local []LocalFingerprint) *Fingerprint {
	return &Fingerprint{
		local:    append([]LocalFingerprint(nil), local...),
		fsStatus: FsStatus{Kind: FsStale},
	}
}

// Local returns a snapshot of the current local variants, under lock.
func (f *Fingerprint) Local() []LocalFingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LocalFingerprint(nil), f.local...)
}

// SetLocal replaces the local variants and invalidates the memoized
// hash. Only the build-script adapter calls this, and only once per
// unit (Phase B), per §5.
func (f *Fingerprint) SetLocal(local []LocalFingerprint) {
	f.mu.Lock()
	f.local = append([]LocalFingerprint(nil), local...)
	f.mu.Unlock()

	f.hashMu.Lock()
	f.memoizedHash = nil
	f.hashMu.Unlock()
}

// FsStatus returns the current filesystem status.
func (f *Fingerprint) FsStatus() FsStatus {
	return f.fsStatus
}

// Hash returns the composite 64-bit hash, computing and memoizing it on
// first call. Dependency contributions use the dependency's own
// memoized hash rather than recursing fully, per §4.4's "to avoid
// quadratic blow-up over deep graphs".
func (f *Fingerprint) Hash() uint64 {
	f.hashMu.Lock()
	defer f.hashMu.Unlock()
	if f.memoizedHash != nil {
		return *f.memoizedHash
	}
	v := f.computeHash()
	f.memoizedHash = &v
	return v
}

// computeHash performs the field-ordered hash described in §4.4:
// rustc, features, target, path, profile, local, metadata, config,
// rustflags, then dep count and per-dep (pkg_id, name, public,
// dep-hash).
func (f *Fingerprint) computeHash() uint64 {
	local := f.Local()
	return combinedHash(func(h *maphash.Hash) {
		HashUint64(h, f.RustcHash)
		HashString(h, f.Features)
		HashUint64(h, f.Target)
		HashUint64(h, f.Path)
		HashUint64(h, f.Profile)
		HashUint64(h, uint64(len(local)))
		for _, l := range local {
			l.Hash(h)
		}
		HashUint64(h, f.Metadata)
		HashUint64(h, f.Config)
		HashStrings(h, f.RustFlags)

		HashUint64(h, uint64(len(f.Deps)))
		for _, d := range f.Deps {
			HashUint64(h, d.PkgID)
			HashString(h, d.Name)
			HashBool(h, d.Public)
			HashUint64(h, d.Fingerprint.Hash())
		}
	})
}

// SortDeps orders Deps by PkgID, the canonical order per §3's invariant
// that deps comparison is positional after sorting.
func (f *Fingerprint) SortDeps() {
	sort.Slice(f.Deps, func(i, j int) bool { return f.Deps[i].PkgID < f.Deps[j].PkgID })
}

// Compare diagnoses why cur differs from old, in the fixed order of
// §4.4's twelve cases. It is called only when the hashes are already
// known to differ (the decider's dirty path); nonetheless it always
// returns a reason — case 12 is the degenerate catch-all.
func Compare(old, cur *Fingerprint) error {
	if old.RustcHash != cur.RustcHash {
		return fmt.Errorf("the toolchain changed")
	}
	if old.Features != cur.Features {
		return fmt.Errorf("the list of features changed: %q -> %q", old.Features, cur.Features)
	}
	if old.Target != cur.Target {
		return fmt.Errorf("the target configuration changed")
	}
	if old.Path != cur.Path {
		return fmt.Errorf("the source path changed")
	}
	if old.Profile != cur.Profile {
		return fmt.Errorf("profile configuration changed")
	}
	if !stringsEqual(old.RustFlags, cur.RustFlags) {
		return fmt.Errorf("the rustflags changed: %v -> %v", old.RustFlags, cur.RustFlags)
	}
	if old.Metadata != cur.Metadata {
		return fmt.Errorf("package metadata changed")
	}
	if old.Config != cur.Config {
		return fmt.Errorf("build configuration changed")
	}

	oldLocal, curLocal := old.Local(), cur.Local()
	if len(oldLocal) != len(curLocal) {
		return fmt.Errorf("number of local fingerprints changed (%d -> %d)", len(oldLocal), len(curLocal))
	}
	for i := range oldLocal {
		if oldLocal[i].Kind != curLocal[i].Kind {
			return fmt.Errorf("local fingerprint kind mismatch at index %d", i)
		}
		if err := compareLocalValue(oldLocal[i], curLocal[i], i); err != nil {
			return err
		}
	}

	if len(old.Deps) != len(cur.Deps) {
		return fmt.Errorf("number of dependencies changed (%d -> %d)", len(old.Deps), len(cur.Deps))
	}
	for i := range old.Deps {
		if old.Deps[i].Name != cur.Deps[i].Name {
			return fmt.Errorf("dependency name changed at index %d: %q -> %q", i, old.Deps[i].Name, cur.Deps[i].Name)
		}
		if old.Deps[i].Fingerprint.Hash() != cur.Deps[i].Fingerprint.Hash() {
			return fmt.Errorf("dependency %q was rebuilt", cur.Deps[i].Name)
		}
	}

	if cur.fsStatus.Kind != FsUpToDate {
		return fmt.Errorf("the file list changed")
	}

	return fmt.Errorf("two fingerprint comparison turned up nothing obvious")
}

func compareLocalValue(o, n LocalFingerprint, idx int) error {
	switch o.Kind {
	case LocalPrecalculated:
		if o.Precalculated != n.Precalculated {
			return fmt.Errorf("precalculated value for index %d changed: %q -> %q", idx, o.Precalculated, n.Precalculated)
		}
	case LocalCheckDepInfo:
		if o.DepInfo != n.DepInfo {
			return fmt.Errorf("dep-info location for index %d changed: %q -> %q", idx, o.DepInfo, n.DepInfo)
		}
	case LocalRerunIfChanged:
		if o.Output != n.Output || !stringsEqual(o.Paths, n.Paths) {
			return fmt.Errorf("rerun-if-changed paths for index %d changed", idx)
		}
	case LocalRerunIfEnvChanged:
		if o.EnvVar != n.EnvVar || !envValueEqual(o.EnvValue, n.EnvValue) {
			return fmt.Errorf("env var %q changed", o.EnvVar)
		}
	}
	return nil
}

func envValueEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// metaExtensions lists the file extensions considered "metadata-only"
// artifacts for the purposes of CheckFilesystem's only_requires_rmeta
// handling.
var metaExtensions = map[string]bool{
	".rmeta": true,
}

// CheckFilesystem implements §4.4's check_filesystem algorithm.
// Precondition: f.fsStatus.Kind == FsStale. pkgRoot/targetRoot are the
// unit's own roots, used to resolve its local fingerprint's paths.
func (f *Fingerprint) CheckFilesystem(cache *MtimeCache, pkgRoot, targetRoot string) {
	if f.fsStatus.Kind != FsStale {
		return
	}

	mtimes := make(map[string]time.Time, len(f.Outputs))
	var ownMax time.Time
	haveMax := false
	for _, out := range f.Outputs {
		t := cache.mtime(out)
		if t == nil {
			return
		}
		mtimes[out] = *t
		if !haveMax || t.After(ownMax) {
			ownMax = *t
			haveMax = true
		}
	}
	if len(f.Outputs) == 0 {
		f.fsStatus = FsStatus{Kind: FsUpToDate, Mtimes: map[string]time.Time{}}
		return
	}

	for _, dep := range f.Deps {
		if dep.Fingerprint.FsStatus().Kind != FsUpToDate {
			return
		}
		depMtime, ok := depEffectiveMtime(dep)
		if !ok {
			continue
		}
		if depMtime.After(ownMax) {
			return
		}
	}

	for _, l := range f.Local() {
		if l.FindStaleFile(cache, pkgRoot, targetRoot).Kind != StaleNone {
			return
		}
	}

	f.fsStatus = FsStatus{Kind: FsUpToDate, Mtimes: mtimes}
}

// depEffectiveMtime computes the mtime a dependency edge contributes to
// its parent's CheckFilesystem pass: the metadata-only output's mtime
// when the edge is only_requires_rmeta, else the max over all outputs,
// or (false) if the dependency has no outputs to contribute.
func depEffectiveMtime(dep DepEdge) (time.Time, bool) {
	depStatus := dep.Fingerprint.FsStatus()
	if dep.OnlyRequiresMeta {
		for path, t := range depStatus.Mtimes {
			if metaExtensions[filepath.Ext(path)] {
				return t, true
			}
		}
		panic("fprint: only_requires_rmeta edge but dependency produced no metadata-only output")
	}
	var max time.Time
	have := false
	for _, t := range depStatus.Mtimes {
		if !have || t.After(max) {
			max = t
			have = true
		}
	}
	return max, have
}
