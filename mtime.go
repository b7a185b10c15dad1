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
	"time"
)

// MtimeCache is a per-build cache mapping path to modification time,
// populated on first access. It is not safe for concurrent use; per §5
// it is owned by the build context and touched only from the driver
// thread.
type MtimeCache struct {
	m map[string]*time.Time
}

// NewMtimeCache returns an empty cache.
func NewMtimeCache() *MtimeCache {
	return &MtimeCache{m: make(map[string]*time.Time)}
}

// mtime returns p's modification time, or nil if p does not exist or
// cannot be stat'd. The result is cached; a missing file is cached too,
// so a path that appears partway through a build is not picked up until
// Forget is called for it.
func (c *MtimeCache) mtime(p string) *time.Time {
	if t, ok := c.m[p]; ok {
		return t
	}
	fi, err := os.Stat(p)
	if err != nil {
		c.m[p] = nil
		return nil
	}
	t := fi.ModTime()
	c.m[p] = &t
	return &t
}

// Forget evicts p from the cache, so the next probe re-stats it. Nothing
// in this package calls it; completion hooks leave the cache unchanged.
func (c *MtimeCache) Forget(p string) {
	delete(c.m, p)
}

// StaleResult describes the outcome of FindStale.
type StaleResult struct {
	// Kind is one of StaleNone, StaleMissing, StaleChanged.
	Kind StaleKind
	// Path is the candidate (or reference) path responsible for the
	// result; empty when Kind is StaleNone.
	Path string
	// RefMtime and PathMtime are populated when Kind is StaleChanged.
	RefMtime  time.Time
	PathMtime time.Time
	// Reference is always the reference path, for diagnostics.
	Reference string
}

// StaleKind enumerates the possible FindStale outcomes.
type StaleKind int

const (
	// StaleNone means every candidate is no newer than the reference.
	StaleNone StaleKind = iota
	// StaleMissing means the reference or a candidate has no retrievable mtime.
	StaleMissing
	// StaleChanged means a candidate is strictly newer than the reference.
	StaleChanged
)

// FindStale resolves reference's mtime, then walks candidates in order,
// returning the first one found strictly newer. Equal mtimes are not
// stale. On a filesystem with coarse timestamps (one second, say), a
// file edited within the same tick as the reference was written keeps an
// equal mtime and is therefore not detected as changed.
func FindStale(cache *MtimeCache, reference string, candidates []string) StaleResult {
	refMtime := cache.mtime(reference)
	if refMtime == nil {
		return StaleResult{Kind: StaleMissing, Path: reference, Reference: reference}
	}
	for _, cand := range candidates {
		candMtime := cache.mtime(cand)
		if candMtime == nil {
			return StaleResult{Kind: StaleMissing, Path: cand, Reference: reference}
		}
		if candMtime.After(*refMtime) {
			return StaleResult{
				Kind:      StaleChanged,
				Path:      cand,
				Reference: reference,
				RefMtime:  *refMtime,
				PathMtime: *candMtime,
			}
		}
	}
	return StaleResult{Kind: StaleNone}
}
