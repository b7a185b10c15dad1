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
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
)

const invokedStampName = "invoked.timestamp"

// hashFileNameRe matches the short-hash file's name: per §6, "the name
// itself is the 16-hex-digit composite hash prefix literal", so (unlike
// the .json sibling or the dep-info/invoked-timestamp files) it is not a
// fixed name — it changes every time the persisted fingerprint changes.
var hashFileNameRe = regexp.MustCompile(`^[0-9a-f]{16}$`)

// hashFilePath and jsonFilePath return the two sibling files for a given
// hash value, per §6's on-disk layout.
func hashFilePath(dir, hash string) string { return filepath.Join(dir, hash) }
func jsonFilePath(dir, hash string) string { return filepath.Join(dir, hash+".json") }
func invokedStampPath(dir string) string   { return filepath.Join(dir, invokedStampName) }

// findHashFile scans dir for the hash-named file (there is at most one:
// persistFingerprint removes any other), returning its name and
// contents. A directory with no such entry yet (first build) reports
// ok=false, same as a read error.
func findHashFile(dir string) (name string, data []byte, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, false
	}
	for _, e := range entries {
		if e.IsDir() || !hashFileNameRe.MatchString(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		return e.Name(), data, true
	}
	return "", nil, false
}

// removeStaleHashFiles deletes any hash-named file (and its .json
// sibling) other than keep, so a unit directory never accumulates more
// than one generation of hash-named files as its fingerprint changes.
func removeStaleHashFiles(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if name == keep || !hashFileNameRe.MatchString(name) {
			continue
		}
		os.Remove(filepath.Join(dir, name))
		os.Remove(filepath.Join(dir, name+".json"))
	}
	return nil
}

// writeInvokedTimestamp (re)creates the zero-byte invoked-timestamp
// file, whose mtime marks the moment a build was started for this
// unit, per §6.
func writeInvokedTimestamp(dir string) error {
	return os.WriteFile(invokedStampPath(dir), nil, 0o666)
}

// rewindDepInfoMtime sets depInfoPath's mtime back to the invoked
// timestamp recorded for dir, so that source files modified during the
// compile itself are still detected as changed on the next build.
func rewindDepInfoMtime(dir, depInfoPath string) error {
	fi, err := os.Stat(invokedStampPath(dir))
	if err != nil {
		return nil
	}
	t := fi.ModTime()
	return os.Chtimes(depInfoPath, t, t)
}

// serializedDep is the on-disk form of a DepEdge: the dependency's own
// Fingerprint is not embedded (that would serialize the whole transitive
// graph redundantly at every level); only its memoized hash is, which is
// all Compare ever needs from a loaded record.
type serializedDep struct {
	PkgID            uint64 `json:"pkg_id"`
	Name             string `json:"name"`
	Public           bool   `json:"public"`
	OnlyRequiresMeta bool   `json:"only_requires_rmeta"`
	Hash             uint64 `json:"hash"`
}

type serializedLocal struct {
	Kind          LocalKind `json:"kind"`
	Precalculated string    `json:"precalculated,omitempty"`
	DepInfo       string    `json:"dep_info,omitempty"`
	Output        string    `json:"output,omitempty"`
	Paths         []string  `json:"paths,omitempty"`
	EnvVar        string    `json:"env_var,omitempty"`
	EnvValue      *string   `json:"env_value,omitempty"`
}

// serializedFingerprint is the full .json-sibling record. It
// deliberately omits fs_status, per §3's "never persisted".
type serializedFingerprint struct {
	RustcHash uint64            `json:"rustc"`
	Features  string            `json:"features"`
	Target    uint64            `json:"target"`
	Profile   uint64            `json:"profile"`
	Path      uint64            `json:"path"`
	Metadata  uint64            `json:"metadata"`
	Config    uint64            `json:"config"`
	RustFlags []string          `json:"rustflags"`
	Local     []serializedLocal `json:"local"`
	Deps      []serializedDep   `json:"deps"`
	Outputs   []string          `json:"outputs"`
}

func toSerialized(f *Fingerprint) serializedFingerprint {
	s := serializedFingerprint{
		RustcHash: f.RustcHash,
		Features:  f.Features,
		Target:    f.Target,
		Profile:   f.Profile,
		Path:      f.Path,
		Metadata:  f.Metadata,
		Config:    f.Config,
		RustFlags: f.RustFlags,
		Outputs:   f.Outputs,
	}
	for _, l := range f.Local() {
		s.Local = append(s.Local, serializedLocal{
			Kind:          l.Kind,
			Precalculated: l.Precalculated,
			DepInfo:       l.DepInfo,
			Output:        l.Output,
			Paths:         l.Paths,
			EnvVar:        l.EnvVar,
			EnvValue:      l.EnvValue,
		})
	}
	for _, d := range f.Deps {
		s.Deps = append(s.Deps, serializedDep{
			PkgID:            d.PkgID,
			Name:             d.Name,
			Public:           d.Public,
			OnlyRequiresMeta: d.OnlyRequiresMeta,
			Hash:             d.Fingerprint.Hash(),
		})
	}
	return s
}

// stubFingerprint wraps a bare hash in a *Fingerprint so a loaded
// serializedDep can stand in for the real dependency handle when
// comparing: Compare only ever calls .Hash() on a dependency's
// Fingerprint.
func stubFingerprint(hash uint64) *Fingerprint {
	f := &Fingerprint{memoizedHash: &hash}
	return f
}

func fromSerialized(s serializedFingerprint) *Fingerprint {
	var local []LocalFingerprint
	for _, l := range s.Local {
		local = append(local, LocalFingerprint{
			Kind:          l.Kind,
			Precalculated: l.Precalculated,
			DepInfo:       l.DepInfo,
			Output:        l.Output,
			Paths:         l.Paths,
			EnvVar:        l.EnvVar,
			EnvValue:      l.EnvValue,
		})
	}
	f := NewFingerprint(local)
	f.RustcHash = s.RustcHash
	f.Features = s.Features
	f.Target = s.Target
	f.Profile = s.Profile
	f.Path = s.Path
	f.Metadata = s.Metadata
	f.Config = s.Config
	f.RustFlags = s.RustFlags
	f.Outputs = s.Outputs
	for _, d := range s.Deps {
		f.Deps = append(f.Deps, DepEdge{
			PkgID:            d.PkgID,
			Name:             d.Name,
			Public:           d.Public,
			OnlyRequiresMeta: d.OnlyRequiresMeta,
			Fingerprint:      stubFingerprint(d.Hash),
		})
	}
	return f
}

// loadPersistedHash reads the short hash file under dir. A missing file
// or an empty (truncated) one both report ok=false: per §4.6 step 2 and
// scenario S6, both are "no persisted state", not errors.
func loadPersistedHash(dir string) (hash string, ok bool) {
	_, data, found := findHashFile(dir)
	if !found || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// loadPersistedFingerprint reads and parses the .json sibling, for
// diagnostic-only use on the dirty path (§4.6 step 5). A read or parse
// failure is reported via ok=false; never treated as fatal.
func loadPersistedFingerprint(dir string) (f *Fingerprint, ok bool) {
	name, _, found := findHashFile(dir)
	if !found {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, false
	}
	var s serializedFingerprint
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false
	}
	return fromSerialized(s), true
}

// truncateHashFile empties (does not delete) the short-hash file, per
// §4.6 step 6: "so that if the build is interrupted, no stale record
// masquerades as fresh, yet a diagnostic is still possible." Its name is
// whatever generation is currently on disk; truncation never renames it
// (there is nothing to truncate on a first build).
func truncateHashFile(dir string) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	name, _, found := findHashFile(dir)
	if !found {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, name), nil, 0o666)
}

// touchHashFile updates the short-hash file's mtime to now, for
// mtime_on_use support (§4.6 step 3).
func touchHashFile(dir string) error {
	name, _, found := findHashFile(dir)
	if !found {
		return nil
	}
	now := nowFunc()
	return os.Chtimes(filepath.Join(dir, name), now, now)
}

// persistFingerprint atomically rewrites both the short-hash file and
// the .json sibling from f, per §4.6 step 7. The hash file's name is the
// new composite hash itself (§6), so any hash-named file left from a
// previous, different generation is removed first. The hash file is
// written last so a crash mid-write is observed as "no persisted state"
// (empty or missing), never as a mismatched pair.
func persistFingerprint(dir string, f *Fingerprint) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	hash := ToHex(f.Hash())
	data, err := json.Marshal(toSerialized(f))
	if err != nil {
		return err
	}
	if err := removeStaleHashFiles(dir, hash); err != nil {
		return err
	}
	if err := os.WriteFile(jsonFilePath(dir, hash), data, 0o666); err != nil {
		return err
	}
	return os.WriteFile(hashFilePath(dir, hash), []byte(hash), 0o666)
}
