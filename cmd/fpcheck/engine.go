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

package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/maruel/fprint"
)

// unitKey turns a UnitID into a stable sort/map key, since UnitID's
// CompileMode/Profile fields don't otherwise impose an ordering.
func unitKey(id fprint.UnitID) string {
	return fmt.Sprintf("%s|%s|%d|%s", id.Package, id.Target, id.Mode, id.Profile)
}

// bottomUpOrder returns g's units ordered so that every unit appears
// after all of its dependencies: runCheck decides units in this order
// for the same reason decider_test.go's S4 scenario does — a unit's
// fs_status is only known once PrepareTarget has run for it, so a
// dependent must be decided after its dependencies, not before.
func bottomUpOrder(g *Graph) ([]fprint.UnitID, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[fprint.UnitID]int, len(g.Nodes))
	var order []fprint.UnitID

	var visit func(id fprint.UnitID) error
	visit = func(id fprint.UnitID) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("fpcheck: dependency cycle involving %s/%s", id.Package, id.Target)
		}
		state[id] = visiting
		n, ok := g.Nodes[id]
		if !ok {
			return fmt.Errorf("fpcheck: unit %s/%s referenced but not declared", id.Package, id.Target)
		}
		deps := append([]DepRef(nil), n.DepUnits...)
		sort.Slice(deps, func(i, j int) bool { return unitKey(deps[i].Unit) < unitKey(deps[j].Unit) })
		for _, d := range deps {
			if err := visit(d.Unit); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	ids := g.Units()
	sort.Slice(ids, func(i, j int) bool { return unitKey(ids[i]) < unitKey(ids[j]) })
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// runCheck decides freshness for every unit in g, bottom-up, simulating
// a successful build for each dirty unit by invoking its completion
// hook immediately (this demo has no real compiler to wait on). It
// returns the count of dirty units.
func runCheck(g *Graph, out io.Writer) (int, error) {
	order, err := bottomUpOrder(g)
	if err != nil {
		return 0, err
	}

	calc := fprint.NewCalculator(g)
	decider := fprint.NewDecider(g, calc, fprint.NewMtimeCache())
	decider.MtimeOnUse = mtimeOnUse
	printer := fprint.NewStatusPrinter(out)

	dirty := 0
	for _, id := range order {
		if err := decider.PrepareInit(id); err != nil {
			return dirty, fmt.Errorf("fpcheck: preparing %s/%s: %w", id.Package, id.Target, err)
		}
		fresh, hook, err := decider.PrepareTarget(id, false)
		if err != nil {
			return dirty, fmt.Errorf("fpcheck: deciding %s/%s: %w", id.Package, id.Target, err)
		}
		printer.Decided(id, fresh, "")
		if fresh == fprint.Dirty {
			dirty++
			if err := hook(); err != nil {
				return dirty, fmt.Errorf("fpcheck: completing %s/%s: %w", id.Package, id.Target, err)
			}
		}
	}
	printer.Summary()
	return dirty, nil
}
