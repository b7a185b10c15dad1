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

import "github.com/sirupsen/logrus"

// Log is the logger this package writes diagnostics to. It defaults to
// logrus's standard logger; the orchestrator may replace it (or just
// reconfigure its level/formatter) to fold fingerprint diagnostics into
// its own structured output.
var Log = logrus.StandardLogger()

// explaining gates the verbose per-unit dirtiness explanations, the Go
// equivalent of the teacher's global EXPLAIN() toggle.
var explaining = false

// SetExplain turns the verbose dirtiness-comparison log lines on or off.
// The lines are written at Debug level, so Log drops them unless its
// level is Debug or lower.
func SetExplain(on bool) { explaining = on }

func logDebug(format string, args ...interface{}) {
	if !explaining {
		return
	}
	Log.Debugf(format, args...)
}

func logWarn(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}
