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
	"maps"
	"slices"

	"k8s.io/apimachinery/pkg/api/equality"
)

var (
	// ErrInstanceBounds is raised when adding or removing group instances
	// would leave the group out of bounds.
	ErrInstanceBounds = errors.New("group instance out of bounds")

	// ErrNotGroup is raised when an instance event targets a non-group.
	ErrNotGroup = errors.New("control is not a group")
)

// Alert records a failure to load a control's options.
type Alert struct {
	// ID is the control whose options could not be loaded.
	ID string
	// Err is the collaborator's error.
	Err error
}

// State is an immutable snapshot of a wizard's control tree and the
// bookkeeping needed to drive it.  Every change is made by dispatching an
// event, which returns a new state and leaves the receiver untouched.
type State struct {
	tree        *Tree
	generations map[string]uint64
	alerts      map[string]error
}

// NewState takes ownership of the tree and performs an initial resolution
// pass.
func NewState(t *Tree) (*State, error) {
	s := &State{
		tree: t,
	}

	return s.Dispatch(Initialize{})
}

// Tree returns a copy of the current tree.
func (s *State) Tree() *Tree {
	return s.tree.DeepCopy()
}

// View returns the current tree without copying it.  The result must not
// be modified, it is intended for read-only consumers like validation and
// rendering.
func (s *State) View() *Tree {
	return s.tree
}

// Generation returns the current fetch generation for a control.
func (s *State) Generation(id string) uint64 {
	return s.generations[id]
}

// Alerts returns option loading failures in tree order.
func (s *State) Alerts() []Alert {
	var alerts []Alert

	s.tree.walkStatic(func(c *Control) {
		if err, ok := s.alerts[c.ID]; ok {
			alerts = append(alerts, Alert{ID: c.ID, Err: err})
		}
	})

	return alerts
}

func (s *State) clone() *State {
	return &State{
		tree:        s.tree.DeepCopy(),
		generations: maps.Clone(s.generations),
		alerts:      maps.Clone(s.alerts),
	}
}

// Event is a change to the state.
type Event interface {
	// apply mutates the private copy of the state, returning false if
	// the event is a no-op and the original state should be retained.
	apply(s *State) (bool, error)
}

// Dispatch applies the event to a copy of the state.  On error, or if the
// event is ignored, the receiver is returned.
func (s *State) Dispatch(e Event) (*State, error) {
	next := s.clone()

	ok, err := e.apply(next)
	if err != nil {
		return s, err
	}

	if !ok {
		return s, nil
	}

	return next, nil
}

// Initialize evaluates derived state without running any effects.
type Initialize struct{}

func (Initialize) apply(s *State) (bool, error) {
	if err := s.tree.resolve(); err != nil {
		return false, err
	}

	return true, nil
}

// SetValue changes a control's value and resolves the consequences.
type SetValue struct {
	Path  Path
	Value Value
}

func (e SetValue) apply(s *State) (bool, error) {
	c, _, err := s.tree.Find(e.Path)
	if err != nil {
		return false, err
	}

	kind, err := c.Type.ValueKind()
	if err != nil {
		return false, err
	}

	if e.Value != nil && e.Value.Kind() != kind {
		return false, fmt.Errorf("%w: %s expects %v, got %v", ErrValueKind, e.Path, kind, e.Value.Kind())
	}

	if e.Value != nil {
		c.Active = e.Value.DeepCopyValue()
	} else {
		c.Active = nil
	}

	if err := s.tree.resolve(e.Path); err != nil {
		return false, err
	}

	return true, nil
}

func (s *State) group(id string) (*Control, error) {
	c, ok := s.tree.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPath, id)
	}

	if c.Type != TypeGroup {
		return nil, fmt.Errorf("%w: %q", ErrNotGroup, id)
	}

	return c, nil
}

// AddInstance appends a fresh copy of a group's template.
type AddInstance struct {
	Group string
}

func (e AddInstance) apply(s *State) (bool, error) {
	c, err := s.group(e.Group)
	if err != nil {
		return false, err
	}

	c.Instances = append(c.Instances, copyControls(c.Controls))

	if err := s.tree.resolve(); err != nil {
		return false, err
	}

	return true, nil
}

// RemoveInstance deletes a group instance.
type RemoveInstance struct {
	Group string
	Index int
}

func (e RemoveInstance) apply(s *State) (bool, error) {
	c, err := s.group(e.Group)
	if err != nil {
		return false, err
	}

	if e.Index < 0 || e.Index >= len(c.Instances) || len(c.Instances) <= c.MinInstances {
		return false, fmt.Errorf("%w: %q index %d", ErrInstanceBounds, e.Group, e.Index)
	}

	c.Instances = slices.Delete(c.Instances, e.Index, e.Index+1)

	if err := s.tree.resolve(); err != nil {
		return false, err
	}

	return true, nil
}

// FetchStarted marks the start of an option load, the resulting state's
// Generation must be passed back with the result.
type FetchStarted struct {
	ID string
}

func (e FetchStarted) apply(s *State) (bool, error) {
	if _, ok := s.tree.Lookup(e.ID); !ok {
		return false, fmt.Errorf("%w: %q", ErrPath, e.ID)
	}

	if s.generations == nil {
		s.generations = map[string]uint64{}
	}

	s.generations[e.ID]++

	delete(s.alerts, e.ID)

	return true, nil
}

// FetchCompleted delivers the result of an option load.  Results from a
// superseded generation are dropped.
type FetchCompleted struct {
	ID         string
	Generation uint64
	Options    []Option
	Err        error
}

func (e FetchCompleted) apply(s *State) (bool, error) {
	if e.Generation != s.generations[e.ID] {
		return false, nil
	}

	c, ok := s.tree.Lookup(e.ID)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrPath, e.ID)
	}

	if e.Err != nil {
		if s.alerts == nil {
			s.alerts = map[string]error{}
		}

		s.alerts[e.ID] = e.Err

		return true, nil
	}

	c.Available = copyOptions(e.Options)

	before := c.Active

	// Selections that are no longer available are dropped, comboboxes
	// accept free text so keep theirs.
	if c.Type.Selectable() && c.Type != TypeCombobox && c.Active != nil {
		switch v := c.Active.(type) {
		case String:
			if _, ok := c.Option(string(v)); !ok {
				c.Active = nil
			}
		case Strings:
			Select(c)
		}
	}

	var changes []Path

	if !equality.Semantic.DeepEqual(before, c.Active) {
		changes = append(changes, Root(e.ID))
	}

	if err := s.tree.resolve(changes...); err != nil {
		return false, err
	}

	return true, nil
}

// Assignment is a value to load into a control.
type Assignment struct {
	Path  Path
	Value Value
}

// Load populates the tree from previously rendered output.  Groups are
// resized to the given instance counts, values are assigned, then effects
// are run for every assigned control in dependency order.  Effects should
// preserve values that remain valid so that loaded selections survive.
type Load struct {
	Instances   map[string]int
	Assignments []Assignment
}

func (e Load) apply(s *State) (bool, error) {
	for id, count := range e.Instances {
		c, err := s.group(id)
		if err != nil {
			return false, err
		}

		if count < c.MinInstances {
			count = c.MinInstances
		}

		for len(c.Instances) > count {
			c.Instances = c.Instances[:len(c.Instances)-1]
		}

		for len(c.Instances) < count {
			c.Instances = append(c.Instances, copyControls(c.Controls))
		}
	}

	changes := make([]Path, 0, len(e.Assignments))

	for _, assignment := range e.Assignments {
		c, _, err := s.tree.Find(assignment.Path)
		if err != nil {
			return false, err
		}

		kind, err := c.Type.ValueKind()
		if err != nil {
			return false, err
		}

		if assignment.Value != nil && assignment.Value.Kind() != kind {
			return false, fmt.Errorf("%w: %s expects %v", ErrValueKind, assignment.Path, kind)
		}

		c.Active = assignment.Value

		changes = append(changes, assignment.Path)
	}

	if err := s.tree.resolve(changes...); err != nil {
		return false, err
	}

	return true, nil
}
