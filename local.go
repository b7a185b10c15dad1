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
	"os"
	"path/filepath"

	"hash/maphash"
)

// LocalKind tags the variant held by a LocalFingerprint.
type LocalKind int

const (
	// LocalPrecalculated holds an externally supplied opaque token.
	LocalPrecalculated LocalKind = iota
	// LocalCheckDepInfo anchors staleness probing on a dep-info file.
	LocalCheckDepInfo
	// LocalRerunIfChanged anchors staleness probing on an explicit output
	// and path set.
	LocalRerunIfChanged
	// LocalRerunIfEnvChanged hashes an environment variable's
	// captured-at-fingerprint-time value; never probed.
	LocalRerunIfEnvChanged
)

// LocalFingerprint is the tagged union of a unit's local (as opposed to
// dependency-propagated) inputs. Exactly one of the variant-specific
// field groups below is meaningful, selected by Kind.
type LocalFingerprint struct {
	Kind LocalKind

	// Precalculated is the opaque token for LocalPrecalculated.
	Precalculated string

	// DepInfo is the target-root-relative dep-info path for
	// LocalCheckDepInfo.
	DepInfo string

	// Output is the target-root-relative output path for
	// LocalRerunIfChanged.
	Output string
	// Paths are package-root-relative candidate paths for
	// LocalRerunIfChanged.
	Paths []string

	// EnvVar and EnvValue hold a captured environment variable name and
	// value for LocalRerunIfEnvChanged. EnvValue is a pointer so that an
	// unset variable (nil) hashes differently from one set to "".
	EnvVar   string
	EnvValue *string
}

// Hash folds the variant's contribution into h. The fingerprint calls it
// with its own hasher on a snapshot of the local variants taken under
// the local-fields lock; see fingerprint.go.
func (l LocalFingerprint) Hash(h *maphash.Hash) {
	HashUint64(h, uint64(l.Kind))
	switch l.Kind {
	case LocalPrecalculated:
		HashString(h, l.Precalculated)
	case LocalCheckDepInfo:
		HashString(h, l.DepInfo)
	case LocalRerunIfChanged:
		HashString(h, l.Output)
		HashStrings(h, l.Paths)
	case LocalRerunIfEnvChanged:
		HashString(h, l.EnvVar)
		if l.EnvValue == nil {
			HashBool(h, false)
		} else {
			HashBool(h, true)
			HashString(h, *l.EnvValue)
		}
	}
}

// FindStaleFile probes the filesystem for l's variant, per §4.3. It
// returns StaleResult{Kind: StaleNone} for variants that carry no
// filesystem component.
func (l LocalFingerprint) FindStaleFile(cache *MtimeCache, pkgRoot, targetRoot string) StaleResult {
	switch l.Kind {
	case LocalPrecalculated, LocalRerunIfEnvChanged:
		return StaleResult{Kind: StaleNone}

	case LocalCheckDepInfo:
		depInfoPath := filepath.Join(targetRoot, l.DepInfo)
		data, err := os.ReadFile(depInfoPath)
		if err != nil {
			return StaleResult{Kind: StaleMissing, Path: depInfoPath, Reference: depInfoPath}
		}
		entries, err := DecodeDepInfo(data)
		if err != nil {
			return StaleResult{Kind: StaleMissing, Path: depInfoPath, Reference: depInfoPath}
		}
		candidates := ResolveDepInfoPaths(entries, pkgRoot, targetRoot)
		return FindStale(cache, depInfoPath, candidates)

	case LocalRerunIfChanged:
		reference := filepath.Join(targetRoot, l.Output)
		candidates := make([]string, len(l.Paths))
		for i, p := range l.Paths {
			candidates[i] = filepath.Join(pkgRoot, p)
		}
		return FindStale(cache, reference, candidates)

	default:
		return StaleResult{Kind: StaleNone}
	}
}
