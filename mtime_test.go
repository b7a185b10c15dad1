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
	"testing"
	"time"
)

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func TestFindStale_Missing(t *testing.T) {
	dir := t.TempDir()
	cache := NewMtimeCache()
	res := FindStale(cache, filepath.Join(dir, "nope"), nil)
	if res.Kind != StaleMissing {
		t.Fatalf("got %v, want StaleMissing", res.Kind)
	}
}

func TestFindStale_CandidateMissing(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref")
	touch(t, ref, time.Now())

	cache := NewMtimeCache()
	res := FindStale(cache, ref, []string{filepath.Join(dir, "nope")})
	if res.Kind != StaleMissing {
		t.Fatalf("got %v, want StaleMissing", res.Kind)
	}
}

func TestFindStale_StrictGreater(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref")
	equal := filepath.Join(dir, "equal")
	newer := filepath.Join(dir, "newer")

	base := time.Unix(1_700_000_000, 0)
	touch(t, ref, base)
	touch(t, equal, base)
	touch(t, newer, base.Add(time.Second))

	cache := NewMtimeCache()

	// Equal mtime is not stale.
	res := FindStale(cache, ref, []string{equal})
	if res.Kind != StaleNone {
		t.Errorf("equal mtime: got %v, want StaleNone", res.Kind)
	}

	// One tick newer is stale.
	res = FindStale(cache, ref, []string{newer})
	if res.Kind != StaleChanged {
		t.Errorf("newer mtime: got %v, want StaleChanged", res.Kind)
	}
	if res.Path != newer {
		t.Errorf("got stale path %q, want %q", res.Path, newer)
	}
}

func TestFindStale_FirstStaleWins(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref")
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	base := time.Unix(1_700_000_000, 0)
	touch(t, ref, base)
	touch(t, a, base.Add(time.Second))
	touch(t, b, base.Add(2*time.Second))

	cache := NewMtimeCache()
	res := FindStale(cache, ref, []string{a, b})
	if res.Path != a {
		t.Errorf("got first-stale %q, want %q", res.Path, a)
	}
}

func TestMtimeCache_Caches(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	touch(t, p, time.Now())

	cache := NewMtimeCache()
	first := cache.mtime(p)
	if first == nil {
		t.Fatal("expected a retrievable mtime")
	}
	os.Remove(p)
	second := cache.mtime(p)
	if second == nil {
		t.Fatal("expected the cached mtime to survive the file's removal")
	}

	cache.Forget(p)
	if cache.mtime(p) != nil {
		t.Fatal("expected a nil mtime after Forget and removal")
	}
}
