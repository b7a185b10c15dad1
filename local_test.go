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

func TestLocalFingerprint_FindStaleFile_NoFilesystemVariants(t *testing.T) {
	cache := NewMtimeCache()
	for _, l := range []LocalFingerprint{
		{Kind: LocalPrecalculated, Precalculated: "x"},
		{Kind: LocalRerunIfEnvChanged, EnvVar: "FOO"},
	} {
		if got := l.FindStaleFile(cache, "/pkg", "/target"); got.Kind != StaleNone {
			t.Errorf("%v: got %v, want StaleNone", l.Kind, got.Kind)
		}
	}
}

func TestLocalFingerprint_CheckDepInfo_MissingFile(t *testing.T) {
	targetRoot := t.TempDir()
	l := LocalFingerprint{Kind: LocalCheckDepInfo, DepInfo: "deps/unit.d"}
	cache := NewMtimeCache()
	got := l.FindStaleFile(cache, "/pkg", targetRoot)
	if got.Kind != StaleMissing {
		t.Fatalf("got %v, want StaleMissing", got.Kind)
	}
}

func TestLocalFingerprint_CheckDepInfo_Stale(t *testing.T) {
	targetRoot := t.TempDir()
	pkgRoot := t.TempDir()

	depInfoRel := "deps/unit.d"
	depInfoAbs := filepath.Join(targetRoot, depInfoRel)
	if err := os.MkdirAll(filepath.Dir(depInfoAbs), 0o777); err != nil {
		t.Fatal(err)
	}

	srcRel := "src/lib.rs"
	srcAbs := filepath.Join(pkgRoot, srcRel)
	if err := os.MkdirAll(filepath.Dir(srcAbs), 0o777); err != nil {
		t.Fatal(err)
	}

	base := time.Unix(1_700_000_000, 0)
	touch(t, srcAbs, base)
	touch(t, depInfoAbs, base)

	encoded := EncodeDepInfo([]DepInfoEntry{{depInfoPathPackageRoot, srcRel}})
	if err := os.WriteFile(depInfoAbs, encoded, 0o666); err != nil {
		t.Fatal(err)
	}

	l := LocalFingerprint{Kind: LocalCheckDepInfo, DepInfo: depInfoRel}
	cache := NewMtimeCache()
	if got := l.FindStaleFile(cache, pkgRoot, targetRoot); got.Kind != StaleNone {
		t.Fatalf("before touch: got %v, want StaleNone", got.Kind)
	}

	cache = NewMtimeCache()
	touch(t, srcAbs, base.Add(time.Second))
	if got := l.FindStaleFile(cache, pkgRoot, targetRoot); got.Kind != StaleChanged {
		t.Fatalf("after touch: got %v, want StaleChanged", got.Kind)
	}
}

func TestLocalFingerprint_RerunIfChanged(t *testing.T) {
	targetRoot := t.TempDir()
	pkgRoot := t.TempDir()

	out := filepath.Join(targetRoot, "build-script-output")
	src := filepath.Join(pkgRoot, "build.rs")

	base := time.Unix(1_700_000_000, 0)
	touch(t, out, base)
	touch(t, src, base)

	l := LocalFingerprint{Kind: LocalRerunIfChanged, Output: "build-script-output", Paths: []string{"build.rs"}}
	cache := NewMtimeCache()
	if got := l.FindStaleFile(cache, pkgRoot, targetRoot); got.Kind != StaleNone {
		t.Fatalf("got %v, want StaleNone", got.Kind)
	}

	cache = NewMtimeCache()
	touch(t, src, base.Add(time.Second))
	if got := l.FindStaleFile(cache, pkgRoot, targetRoot); got.Kind != StaleChanged {
		t.Fatalf("got %v, want StaleChanged", got.Kind)
	}
}
