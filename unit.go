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

// Package fprint implements the incremental rebuild decision core of a
// multi-package build orchestrator: fingerprinting compilation units,
// probing the filesystem for staleness, persisting the result, and
// deciding whether a unit may be reused ("fresh") or must be rebuilt
// ("dirty").
//
// The orchestrator itself (job queue, compiler invocation, workspace
// resolution, package sources) is external. This package only defines
// and consumes the narrow interfaces below.
package fprint

// UnitID uniquely identifies a (package, target, mode, profile) tuple;
// there is no separate compile-kind field. This package uses it as a map
// key and reads only its Mode (to pick doc, doc-test and build-script
// handling).
type UnitID struct {
	// Package is the package identity, e.g. an import path or manifest
	// location. Combined with Target/Mode/Profile it disambiguates units
	// that otherwise share a package.
	Package string
	Target  string
	Mode    CompileMode
	Profile string
}

// CompileMode enumerates the kinds of work a Unit can perform.
type CompileMode int

const (
	// ModeBuild compiles a library or binary target.
	ModeBuild CompileMode = iota
	// ModeTest compiles a target harnessed for its own test suite.
	ModeTest
	// ModeDoc generates documentation for a target. Doc units have no
	// dep-info file (see Calculator).
	ModeDoc
	// ModeDocTest compiles and runs the code examples embedded in a
	// target's documentation. Doc-test units produce no on-disk
	// artifacts, so PrepareInit is a no-op for them.
	ModeDocTest
	// ModeRunCustomBuild executes a unit's build script. See buildscript.go.
	ModeRunCustomBuild
)

// OutputFlavor classifies an output file produced by a unit.
type OutputFlavor int

const (
	// FlavorNormal is a normal compiled artifact (library, binary, rmeta…).
	FlavorNormal OutputFlavor = iota
	// FlavorDebugInfo is a debug-info side file (e.g. a .pdb or split DWARF).
	FlavorDebugInfo
	// FlavorAuxiliary is any other auxiliary output not tracked for
	// freshness purposes (e.g. a linker map file).
	FlavorAuxiliary
)

// Output describes one file a unit produces.
type Output struct {
	Path   string
	Flavor OutputFlavor
}

// UnitDep describes one outgoing dependency edge from a unit, as reported
// by the orchestrator's unit graph.
type UnitDep struct {
	Unit UnitID
	// ExternName is the name this dependency is imported under (the
	// extern-crate-name equivalent).
	ExternName string
	// Public records whether the dependency is re-exported publicly.
	Public bool
	// IsBinary excludes the edge from fingerprint propagation: binaries
	// don't induce recompiles of their dependents.
	IsBinary bool
	// OnlyRequiresMeta records whether this edge is satisfied by the
	// dependency's metadata-only artifact rather than its full output.
	OnlyRequiresMeta bool
}

// TargetInfo is the scalar, per-unit information the core needs to build
// a Fingerprint. All fields must already exclude any machine-specific
// absolute path; see BuildContext.SourcePathHash.
type TargetInfo struct {
	// TargetHash is a 64-bit hash of the target descriptor (name,
	// relative source path, edition/language-version, flags).
	TargetHash uint64
	// Features is the canonical textual encoding of enabled features.
	Features string
	// ProfileHash is a 64-bit hash of (profile settings, compile mode,
	// extra per-unit args, LTO setting).
	ProfileHash uint64
	// MetadataHash is a 64-bit hash of manifest metadata exposed to the
	// compiler as environment variables.
	MetadataHash uint64
	// ConfigHash is a 64-bit hash of build-system configuration settings
	// not captured elsewhere; 0 when not applicable.
	ConfigHash uint64
	// Flags is the ordered list of opaque compiler flag strings
	// (RUSTFLAGS/RUSTDOCFLAGS equivalent).
	Flags []string
}

// BuildContext is the interface the core consumes from the orchestrator.
// It is the Go analogue of Cargo's Context/BuildContext: unit
// introspection, compiler descriptor, workspace roots, and the
// build-script output map.
type BuildContext interface {
	// CompilerVersion returns the compiler's verbose version string, used
	// to invalidate all fingerprints on a toolchain change.
	CompilerVersion() string

	// TargetRoot is the absolute directory under which all build
	// artifacts are written.
	TargetRoot() string

	// PackageRoot is the absolute directory containing unit's manifest.
	PackageRoot(unit UnitID) string

	// IsLocalPath reports whether unit's package is a local path package
	// (as opposed to a registry or git dependency). Path hashing and
	// pkg-id hashing both depend on this to stay rename-insensitive.
	IsLocalPath(unit UnitID) bool

	// SourcePathHash returns the 64-bit hash of unit's root source path,
	// already computed workspace-relative (local path packages) or
	// absolute (everything else) by the orchestrator.
	SourcePathHash(unit UnitID) uint64

	// PackageIdentityHash returns the 64-bit hash used for DepEdge.PkgID:
	// the package name alone for local path packages, the full package
	// identity otherwise.
	PackageIdentityHash(unit UnitID) uint64

	// TargetInfo returns the scalar fingerprint inputs for unit.
	TargetInfo(unit UnitID) TargetInfo

	// Deps returns unit's outgoing dependency edges, in arbitrary order
	// (the Calculator sorts by PkgID).
	Deps(unit UnitID) []UnitDep

	// Outputs returns the files unit will produce.
	Outputs(unit UnitID) []Output

	// DepInfoLoc returns the target-root-relative location of the
	// translated (binary) dep-info file for unit.
	DepInfoLoc(unit UnitID) string

	// FingerprintDir returns the absolute per-unit directory, under the
	// target root, that holds this unit's persisted fingerprint state:
	// the short-hash file, its .json sibling, the binary dep-info file,
	// and the zero-byte invoked-timestamp file.
	FingerprintDir(unit UnitID) string

	// PackageSource returns the PackageSource responsible for unit's
	// package, for fingerprinting and pre-build verification.
	PackageSource(unit UnitID) PackageSource

	// BuildScriptOutputs returns the parsed rerun-if directives and
	// captured env values recorded the last time unit's build script
	// ran, or nil if it has never run.
	BuildScriptOutputs(unit UnitID) *BuildScriptOutput

	// BuildScriptOverride returns the override payload configured for
	// unit, and true, if unit's build script execution is entirely
	// replaced by external configuration.
	BuildScriptOverride(unit UnitID) (payload string, overridden bool)
}

// PackageSource is the external collaborator responsible for a package's
// identity: reporting a package-level fingerprint token, and verifying
// pre-build integrity for directory-style sources.
type PackageSource interface {
	// Fingerprint returns the package-level opaque token used by
	// Precalculated local fingerprints: a version string for registry
	// packages, a revision for repository packages, or a stringified
	// max-mtime over package files for local path packages.
	Fingerprint(unit UnitID) (string, error)

	// Verify is called on the dirty path, before scheduling a rebuild, so
	// a directory source can report a pre-build integrity failure.
	Verify(unit UnitID) error
}
