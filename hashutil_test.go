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

import "testing"

func TestToHex_FixedWidth(t *testing.T) {
	cases := []uint64{0, 1, 0xf, 0xff00, 0xffffffffffffffff}
	for _, v := range cases {
		got := ToHex(v)
		if len(got) != 16 {
			t.Errorf("ToHex(%#x) = %q, want exactly 16 hex digits (got %d)", v, got, len(got))
		}
	}
}

func TestToHex_LeadingZeroesPadded(t *testing.T) {
	if got, want := ToHex(1), "0000000000000001"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := ToHex(0), "0000000000000000"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
