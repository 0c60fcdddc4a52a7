/*
Copyright 2025 the Unikorn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package control

import (
	"errors"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/util/sets"
)

var (
	// ErrEffect is raised when an OnSelect callback fails.
	ErrEffect = errors.New("control effect failed")
)

// Resolve returns a copy of the tree with derived state brought up to date
// after the control at the changed path was edited.  A nil path performs an
// initial pass that runs no effects.
func Resolve(t *Tree, changed *Path) (*Tree, error) {
	out := t.DeepCopy()

	var changes []Path

	if changed != nil {
		changes = append(changes, *changed)
	}

	if err := out.resolve(changes...); err != nil {
		return nil, err
	}

	return out, nil
}

// resolve performs a resolution pass in place.  Effects are run for the
// changed controls, then for anything whose value they changed, following
// the dependency order computed at build time so each effect runs once and
// sees the final values of everything that precedes it.  Derived state is
// evaluated last, across the whole tree.
func (t *Tree) resolve(changes ...Path) error {
	dirty := sets.New[string]()

	for _, path := range changes {
		if path.Group == "" {
			dirty.Insert(path.ID)
			continue
		}

		if err := t.propagateInstance(path); err != nil {
			return err
		}
	}

	if err := t.propagate(dirty); err != nil {
		return err
	}

	t.derive()

	return nil
}

// snapshot captures the values of controls an effect may change.
func snapshot(controls []*Control) []any {
	out := make([]any, len(controls))

	for i, c := range controls {
		if c.Type != TypeGroup {
			out[i] = c.Active
			continue
		}

		values := make([][]Value, len(c.Instances))

		for j, instance := range c.Instances {
			values[j] = make([]Value, len(instance))

			for k := range instance {
				values[j][k] = instance[k].Active
			}
		}

		out[i] = values
	}

	return out
}

// runEffect runs a control's effect and returns the ids of any affected
// controls whose values changed.
func runEffect(c *Control, s *Scope) ([]string, error) {
	targets := make([]*Control, len(c.Affects))

	for i, id := range c.Affects {
		targets[i] = s.Get(id)
	}

	before := snapshot(targets)

	if err := c.OnSelect(c, s); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrEffect, c.ID, err)
	}

	after := snapshot(targets)

	var changed []string

	for i := range targets {
		if !equality.Semantic.DeepEqual(before[i], after[i]) {
			changed = append(changed, c.Affects[i])
		}
	}

	return changed, nil
}

// propagate runs effects across the static tree.
func (t *Tree) propagate(dirty sets.Set[string]) error {
	for _, id := range t.order {
		if !dirty.Has(id) {
			continue
		}

		c := t.Get(id)

		if c.OnSelect == nil {
			continue
		}

		changed, err := runEffect(c, t.Scope(c, nil))
		if err != nil {
			return err
		}

		dirty.Insert(changed...)
	}

	return nil
}

// propagateInstance runs effects within a single group instance.
func (t *Tree) propagateInstance(path Path) error {
	_, instance, err := t.Find(path)
	if err != nil {
		return err
	}

	dirty := sets.New(path.ID)

	for _, id := range t.groupOrders[path.Group] {
		if !dirty.Has(id) {
			continue
		}

		c := findIn(instance, id)

		if c.OnSelect == nil {
			continue
		}

		changed, err := runEffect(c, t.Scope(c, instance))
		if err != nil {
			return err
		}

		dirty.Insert(changed...)
	}

	return nil
}

// derive recomputes available options and visibility for every control.
func (t *Tree) derive() {
	for _, c := range t.Controls {
		t.deriveControl(c, nil, false, false)
	}
}

//nolint:cyclop
func (t *Tree) deriveControl(c *Control, instance []*Control, hidden, disabled bool) {
	s := t.Scope(c, instance)

	if c.AvailableFunc != nil {
		c.Available = c.AvailableFunc(c, s)
	}

	c.IsHidden = hidden || (c.Hidden != nil && c.Hidden(c, s))
	c.IsDisabled = disabled || (c.Disabled != nil && c.Disabled(c, s))

	switch c.Type {
	case TypeStep, TypeSection:
		for _, child := range c.Controls {
			t.deriveControl(child, nil, c.IsHidden, c.IsDisabled)
		}
	case TypeGroup:
		for _, instance := range c.Instances {
			for _, child := range instance {
				t.deriveControl(child, instance, c.IsHidden, c.IsDisabled)
			}
		}
	case TypeTitle, TypeText, TypeNumber, TypeCheckbox, TypeCombobox, TypeSingleSelect,
		TypeMultiSelect, TypeTreeSelect, TypeTable, TypeHidden, TypeCustom, TypeReview,
		TypeLabels, TypeValues:
	}
}

// Select sets a selectable control's value to the first available option
// unless the current value is still available.  It is a convenience for
// effects that repopulate dependent lists.
func Select(c *Control) {
	switch v := c.Active.(type) {
	case String:
		if _, ok := c.Option(string(v)); ok {
			return
		}
	case Strings:
		c.Active = Strings(slices.DeleteFunc(slices.Clone(v), func(value string) bool {
			_, ok := c.Option(value)
			return !ok
		}))

		return
	}

	if c.Type == TypeMultiSelect || c.Type == TypeTreeSelect {
		return
	}

	if len(c.Available) == 0 {
		c.Active = nil
		return
	}

	c.Active = String(c.Available[0].Value)
}
