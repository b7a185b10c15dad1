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
	"io"

	"github.com/fatih/color"
)

// StatusPrinter reports per-unit freshness decisions as they are made,
// and a final tally. It is a thin, optional convenience: nothing in the
// decision core depends on it.
type StatusPrinter struct {
	w       io.Writer
	fresh   int
	dirty   int
	dirtyFn func(format string, a ...interface{}) string
	freshFn func(format string, a ...interface{}) string
}

// NewStatusPrinter returns a StatusPrinter writing to w.
func NewStatusPrinter(w io.Writer) *StatusPrinter {
	return &StatusPrinter{
		w:       w,
		dirtyFn: color.New(color.FgYellow, color.Bold).SprintfFunc(),
		freshFn: color.New(color.FgGreen).SprintfFunc(),
	}
}

// Decided records and prints one unit's freshness decision.
func (s *StatusPrinter) Decided(unit UnitID, fresh Freshness, reason string) {
	switch fresh {
	case Fresh:
		s.fresh++
		fmt.Fprintf(s.w, "%s %s\n", s.freshFn("FRESH"), unitLabel(unit))
	case Dirty:
		s.dirty++
		label := s.dirtyFn("DIRTY")
		if reason != "" {
			fmt.Fprintf(s.w, "%s %s: %s\n", label, unitLabel(unit), reason)
		} else {
			fmt.Fprintf(s.w, "%s %s\n", label, unitLabel(unit))
		}
	}
}

// Summary prints the final fresh/dirty tally.
func (s *StatusPrinter) Summary() {
	fmt.Fprintf(s.w, "%d fresh, %d dirty\n", s.fresh, s.dirty)
}

func unitLabel(u UnitID) string {
	return fmt.Sprintf("%s(%s)", u.Package, u.Target)
}
