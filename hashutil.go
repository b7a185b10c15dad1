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
	"encoding/binary"
	"fmt"
	"hash/maphash"
)

// hashSeed is shared by every hasher this package creates so that two
// calls to HashUint64/HashString/HashStrings within the same process
// produce the same digest for the same input. maphash normally
// randomizes its seed per-process to discourage using it as a stable
// on-disk format; fingerprints never leave the process that wrote them,
// so a single fixed seed is fine and makes memoization comparisons
// trivial.
var hashSeed = maphash.MakeSeed()

// newHasher returns a maphash.Hash seeded consistently for this process.
func newHasher() *maphash.Hash {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	return &h
}

// HashUint64 folds v into a running 64-bit digest.
func HashUint64(h *maphash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// HashString folds s, length-prefixed, into a running digest. The length
// prefix keeps adjacent fields from aliasing ("ab"+"c" vs "a"+"bc").
func HashString(h *maphash.Hash, s string) {
	HashUint64(h, uint64(len(s)))
	h.WriteString(s)
}

// HashStrings folds an ordered slice of strings into a running digest.
func HashStrings(h *maphash.Hash, ss []string) {
	HashUint64(h, uint64(len(ss)))
	for _, s := range ss {
		HashString(h, s)
	}
}

// HashBool folds a boolean into a running digest.
func HashBool(h *maphash.Hash, b bool) {
	if b {
		HashUint64(h, 1)
	} else {
		HashUint64(h, 0)
	}
}

// combinedHash computes a single 64-bit digest over a sequence of
// scalar/string fields. Callers build up the field list, then call this
// once; it exists so every fingerprint sub-hash (target, profile,
// metadata…) is computed the same way.
func combinedHash(fn func(h *maphash.Hash)) uint64 {
	h := newHasher()
	fn(h)
	return h.Sum64()
}

// ToHex renders v as 16 lowercase hex digits, zero-padded, the fixed
// width the orchestrator requires for on-disk file name components (the
// short-hash file's name and contents, per §6).
func ToHex(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// HashText hashes a single string using this package's process-fixed
// seed. It exists for callers outside the package (a BuildContext
// implementation, say) that need to derive a stable uint64 from a path
// or identity string without pulling in their own hash/maphash seed.
func HashText(s string) uint64 {
	return combinedHash(func(h *maphash.Hash) { HashString(h, s) })
}
