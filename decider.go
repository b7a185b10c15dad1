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
	"os"
	"path/filepath"
	"time"
)

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now

// Freshness is the outcome of a freshness decision.
type Freshness int

const (
	// Fresh means the unit's previous artifacts may be reused.
	Fresh Freshness = iota
	// Dirty means the unit must be rebuilt.
	Dirty
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "dirty"
}

// CompletionHook is returned by PrepareTarget. The orchestrator calls it
// after the unit's build succeeds (for a Dirty decision, a hook that
// persists the new fingerprint; for Fresh, a no-op).
type CompletionHook func() error

// Decider implements §4.6's freshness decision: compute, probe,
// compare, and arrange for persistence on success.
type Decider struct {
	ctx   BuildContext
	calc  *Calculator
	cache *MtimeCache

	// MtimeOnUse, when true, touches a unit's persisted hash file on
	// every read, so an external LRU cleaner can tell recently consulted
	// artifacts from stale ones.
	MtimeOnUse bool
}

// NewDecider returns a Decider backed by ctx and calc, sharing cache
// across every unit in one build (it is not safe for concurrent use,
// per §5).
func NewDecider(ctx BuildContext, calc *Calculator, cache *MtimeCache) *Decider {
	return &Decider{ctx: ctx, calc: calc, cache: cache}
}

// PrepareTarget implements §4.6 and the exposed prepare_target
// interface (§6). force turns an otherwise-Fresh decision into Dirty,
// mirroring a user-requested rebuild; it is applied after the comparison
// and does not by itself trigger Verify.
func (d *Decider) PrepareTarget(unit UnitID, force bool) (Freshness, CompletionHook, error) {
	f, err := d.calc.Fingerprint(unit)
	if err != nil {
		return Dirty, nil, err
	}

	pkgRoot := d.ctx.PackageRoot(unit)
	targetRoot := d.ctx.TargetRoot()
	f.CheckFilesystem(d.cache, pkgRoot, targetRoot)

	dir := d.ctx.FingerprintDir(unit)
	persisted, havePersisted := loadPersistedHash(dir)

	if havePersisted && d.MtimeOnUse {
		if err := touchHashFile(dir); err != nil {
			logWarn("fprint: touch hash file for %v: %v", unit, err)
		}
	}

	// compareOK is the outcome of comparing the newly computed fingerprint
	// against whatever is persisted, independent of force: per
	// original_source/fingerprint.rs's prepare_target, the source's
	// Verify hook is gated on this comparison having failed, and "force"
	// is consulted only afterwards, as a separate override of an
	// otherwise-fresh decision.
	newHash := ToHex(f.Hash())
	compareOK := havePersisted && persisted == newHash && f.FsStatus().Kind == FsUpToDate

	if !compareOK {
		if havePersisted {
			if old, ok := loadPersistedFingerprint(dir); ok {
				if cmpErr := Compare(old, f); cmpErr != nil {
					logDebug("fprint: %v is dirty: %v", unit, cmpErr)
				}
			}
		} else {
			logDebug("fprint: %v is dirty: no persisted fingerprint", unit)
		}

		if src := d.ctx.PackageSource(unit); src != nil {
			if err := src.Verify(unit); err != nil {
				return Dirty, nil, fmt.Errorf("fprint: verifying %v: %w", unit, err)
			}
		}
	}

	if compareOK && !force {
		return Fresh, func() error { return nil }, nil
	}

	if err := truncateHashFile(dir); err != nil {
		return Dirty, nil, fmt.Errorf("fprint: truncating hash file for %v: %w", unit, err)
	}
	if err := writeInvokedTimestamp(dir); err != nil {
		return Dirty, nil, fmt.Errorf("fprint: recording build start for %v: %w", unit, err)
	}

	hook := func() error {
		if rel := d.ctx.DepInfoLoc(unit); rel != "" {
			depInfoAbs := filepath.Join(targetRoot, rel)
			if err := rewindDepInfoMtime(dir, depInfoAbs); err != nil {
				logWarn("fprint: rewinding dep-info mtime for %v: %v", unit, err)
			}
		}
		return persistFingerprint(dir, f)
	}
	return Dirty, hook, nil
}

// PrepareInit ensures unit's on-disk fingerprint directory exists,
// skipped for doc-test units which produce no artifacts, per §6.
func (d *Decider) PrepareInit(unit UnitID) error {
	if unit.Mode == ModeDocTest {
		return nil
	}
	return os.MkdirAll(d.ctx.FingerprintDir(unit), 0o777)
}

// DepInfoLoc tells the orchestrator where to place this unit's
// translated dep-info file, per §6.
func (d *Decider) DepInfoLoc(unit UnitID) string {
	return d.ctx.DepInfoLoc(unit)
}
