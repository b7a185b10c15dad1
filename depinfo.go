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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DepInfoPathType classifies a path recorded in the core's binary
// dep-info format, so it can be resolved relative to the correct root
// the next time it is read back.
type DepInfoPathType byte

const (
	// depInfoPathPackageRoot marks a path stored relative to the unit's
	// package root.
	depInfoPathPackageRoot DepInfoPathType = 1
	// depInfoPathTargetRoot marks a path stored relative to the target
	// root, or carrying a full absolute path (re-joining an absolute
	// path to any root is a no-op, so both cases share this tag).
	depInfoPathTargetRoot DepInfoPathType = 2
)

// DepInfoEntry is one classified prerequisite path in the core's binary
// dep-info format.
type DepInfoEntry struct {
	Type DepInfoPathType
	Path string
}

// ParseRustcStyleDepInfo parses the compiler's Makefile-style dependency
// output: one or more "target: prereq prereq …" lines, where a trailing
// backslash followed by a newline is a space-escape joining the next
// line's first token to the previous one. It returns the prerequisite
// paths in first-seen order, deduplicated across every target line in
// the file.
func ParseRustcStyleDepInfo(data []byte) ([]string, error) {
	// Undo backslash-newline continuations before tokenizing, the same
	// way a Makefile reader would: "a\\\nb" becomes "a b".
	joined := bytes.ReplaceAll(data, []byte("\\\n"), []byte(" "))

	var out []string
	seen := make(map[string]bool)
	for _, line := range bytes.Split(joined, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		rest := line[colon+1:]
		for _, tok := range splitMakeTokens(rest) {
			if tok == "" {
				continue
			}
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out, nil
}

// splitMakeTokens splits a Makefile prerequisite list on unescaped
// whitespace. "\\ " (backslash-space) is an escaped literal space within
// a single path component, not a token separator.
func splitMakeTokens(s []byte) []string {
	var toks []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == ' ':
			cur = append(cur, ' ')
			i++
		case c == ' ' || c == '\t':
			if len(cur) > 0 {
				toks = append(toks, string(cur))
				cur = nil
			}
		default:
			cur = append(cur, c)
		}
	}
	if len(cur) > 0 {
		toks = append(toks, string(cur))
	}
	return toks
}

// canonicalize resolves p (joined against cwd if relative) to an
// absolute, symlink-resolved path. When resolution fails (the path does
// not exist yet, for instance) it falls back to the plain joined
// absolute path, per the classification rule's documented fallback.
func canonicalize(cwd, p string) string {
	joined := p
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(cwd, joined)
	}
	if resolved, err := filepath.EvalSymlinks(joined); err == nil {
		return resolved
	}
	return filepath.Clean(joined)
}

// underRoot reports whether p lies under root (both already absolute,
// canonical paths), and if so, the root-relative remainder.
func underRoot(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == "." || (len(rel) >= 2 && rel[:2] == "..") {
		return "", false
	}
	return rel, true
}

// TranslateDepInfo classifies and re-encodes the compiler's raw
// prerequisite list into the core's compact binary dep-info format.
//
// rustcCwd is the directory the compiler ran in (relative prerequisite
// paths in the input are resolved against it); pkgRoot and targetRoot
// are the unit's package root and the build's target root,
// already-canonical absolute paths. allowPackage controls whether
// package-root-relative paths are retained (false for registry/git
// dependencies, whose sources are treated as immutable) or dropped.
func TranslateDepInfo(paths []string, rustcCwd, pkgRoot, targetRoot string, allowPackage bool) ([]byte, error) {
	canonTarget := canonicalize(".", targetRoot)
	canonPkg := canonicalize(".", pkgRoot)

	var entries []DepInfoEntry
	for _, raw := range paths {
		abs := canonicalize(rustcCwd, raw)
		if rel, ok := underRoot(canonTarget, abs); ok {
			entries = append(entries, DepInfoEntry{depInfoPathTargetRoot, rel})
			continue
		}
		if rel, ok := underRoot(canonPkg, abs); ok {
			if !allowPackage {
				continue
			}
			entries = append(entries, DepInfoEntry{depInfoPathPackageRoot, rel})
			continue
		}
		entries = append(entries, DepInfoEntry{depInfoPathTargetRoot, abs})
	}
	return EncodeDepInfo(entries), nil
}

// EncodeDepInfo renders entries in the zero-byte-terminated binary
// format: each record is one classification byte followed by the path
// bytes, terminated by 0x00.
func EncodeDepInfo(entries []DepInfoEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		buf.WriteByte(byte(e.Type))
		buf.WriteString(e.Path)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeDepInfo parses the binary dep-info format back into classified
// entries. Empty records (no bytes between two terminators) are
// skipped. An unrecognized classification byte is a malformed-format
// error, fatal to the caller per the codec's error handling design.
func DecodeDepInfo(data []byte) ([]DepInfoEntry, error) {
	var entries []DepInfoEntry
	for _, rec := range bytes.Split(data, []byte{0}) {
		if len(rec) == 0 {
			continue
		}
		typ := DepInfoPathType(rec[0])
		if typ != depInfoPathPackageRoot && typ != depInfoPathTargetRoot {
			return nil, fmt.Errorf("fprint: malformed dep-info: invalid classification byte %d", rec[0])
		}
		entries = append(entries, DepInfoEntry{typ, string(rec[1:])})
	}
	return entries, nil
}

// TranslateDepInfoFile reads the compiler's raw Makefile-style dep-info
// file at rustcDepInfoPath, classifies and re-encodes it, and writes the
// result to cargoDepInfoPath. This is the exposed translate_dep_info
// operation (§6), invoked by the orchestrator after a successful
// compile.
func TranslateDepInfoFile(rustcDepInfoPath, cargoDepInfoPath, rustcCwd, pkgRoot, targetRoot string, allowPackage bool) error {
	data, err := os.ReadFile(rustcDepInfoPath)
	if err != nil {
		return err
	}
	paths, err := ParseRustcStyleDepInfo(data)
	if err != nil {
		return err
	}
	encoded, err := TranslateDepInfo(paths, rustcCwd, pkgRoot, targetRoot, allowPackage)
	if err != nil {
		return err
	}
	return os.WriteFile(cargoDepInfoPath, encoded, 0o666)
}

// ResolveDepInfoPaths joins each classified entry back to an absolute
// path, against pkgRoot or targetRoot as its tag declares.
func ResolveDepInfoPaths(entries []DepInfoEntry, pkgRoot, targetRoot string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case depInfoPathPackageRoot:
			out = append(out, filepath.Join(pkgRoot, e.Path))
		default:
			if filepath.IsAbs(e.Path) {
				out = append(out, e.Path)
			} else {
				out = append(out, filepath.Join(targetRoot, e.Path))
			}
		}
	}
	return out
}
