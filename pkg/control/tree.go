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
	"strconv"
	"strings"
)

var (
	// ErrUnknownType is raised when a control has a type outside the vocabulary.
	ErrUnknownType = errors.New("unknown control type")

	// ErrValueKind is raised when a value doesn't match its control's type.
	ErrValueKind = errors.New("value kind mismatch")

	// ErrMissingID is raised when a control has no identifier.
	ErrMissingID = errors.New("control missing id")

	// ErrAmbiguousReference is raised when an id is defined more than once
	// in the same scope.
	ErrAmbiguousReference = errors.New("ambiguous control id")

	// ErrUnresolvedReference is raised when a declared dependency does not
	// exist.
	ErrUnresolvedReference = errors.New("unresolved control reference")

	// ErrUndeclaredReference is raised when a callback accesses a control
	// it didn't declare.  This is a programming error and panics.
	ErrUndeclaredReference = errors.New("undeclared control reference")

	// ErrDependencyCycle is raised when controls affect one another.
	ErrDependencyCycle = errors.New("control dependency cycle")

	// ErrNesting is raised when a group template contains containers or
	// other groups.
	ErrNesting = errors.New("unsupported control nesting")

	// ErrPath is raised when a path cannot be parsed or located.
	ErrPath = errors.New("invalid control path")
)

// Path addresses a control, either at the root or within a group instance.
type Path struct {
	// Group is the owning group's id, empty for static controls.
	Group string
	// Instance is the group instance index.
	Instance int
	// ID is the control's id.
	ID string
}

// Root returns a path to a static control.
func Root(id string) Path {
	return Path{ID: id}
}

// InGroup returns a path to a control in a group instance.
func InGroup(group string, instance int, id string) Path {
	return Path{Group: group, Instance: instance, ID: id}
}

func (p Path) String() string {
	if p.Group == "" {
		return p.ID
	}

	return p.Group + "[" + strconv.Itoa(p.Instance) + "]." + p.ID
}

// ParsePath parses the output of Path.String.
func ParsePath(s string) (Path, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if s == "" {
			return Path{}, fmt.Errorf("%w: empty", ErrPath)
		}

		return Root(s), nil
	}

	end := strings.Index(s, "].")
	if end < open || open == 0 || end+2 == len(s) {
		return Path{}, fmt.Errorf("%w: %q", ErrPath, s)
	}

	instance, err := strconv.Atoi(s[open+1 : end])
	if err != nil || instance < 0 {
		return Path{}, fmt.Errorf("%w: bad instance in %q", ErrPath, s)
	}

	return InGroup(s[:open], instance, s[end+2:]), nil
}

// Tree is a validated control tree.  The index and dependency ordering are
// computed once by Build and shared by all copies, as the static shape of
// the tree never changes.
type Tree struct {
	// Controls is the root list.
	Controls []*Control

	// index maps static control ids to their position.
	index map[string][]int
	// order is the topological order of static controls.
	order []string
	// groupOrders is the topological order of each group's template.
	groupOrders map[string][]string
}

// Build validates a control list and resolves all references, returning
// a tree ready for resolution.  Groups with fewer instances than their
// minimum are padded with copies of the template.
func Build(controls []*Control) (*Tree, error) {
	t := &Tree{
		Controls:    controls,
		index:       map[string][]int{},
		groupOrders: map[string][]string{},
	}

	if err := t.indexControls(controls, nil); err != nil {
		return nil, err
	}

	var declared []*Control

	t.walkStatic(func(c *Control) {
		declared = append(declared, c)
	})

	for _, c := range declared {
		for _, id := range slices.Concat(c.DependsOn, c.Affects) {
			if _, ok := t.index[id]; !ok {
				return nil, fmt.Errorf("%w: %q referenced by %q", ErrUnresolvedReference, id, c.ID)
			}
		}

		if c.Type != TypeGroup {
			continue
		}

		if err := t.buildGroup(c); err != nil {
			return nil, err
		}
	}

	order, err := topologicalOrder(declared)
	if err != nil {
		return nil, err
	}

	t.order = order

	return t, nil
}

// indexControls records the position of every static control.
func (t *Tree) indexControls(controls []*Control, prefix []int) error {
	for i, c := range controls {
		if err := checkControl(c); err != nil {
			return err
		}

		if _, ok := t.index[c.ID]; ok {
			return fmt.Errorf("%w: %q", ErrAmbiguousReference, c.ID)
		}

		position := append(slices.Clone(prefix), i)

		t.index[c.ID] = position

		if c.Type.Container() {
			if err := t.indexControls(c.Controls, position); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkControl performs checks common to all controls.
func checkControl(c *Control) error {
	if c.ID == "" {
		return fmt.Errorf("%w: type %q", ErrMissingID, c.Type)
	}

	kind, err := c.Type.ValueKind()
	if err != nil {
		return fmt.Errorf("%w: control %q", err, c.ID)
	}

	if c.Active != nil && c.Active.Kind() != kind {
		return fmt.Errorf("%w: control %q of type %q has %v value", ErrValueKind, c.ID, c.Type, c.Active.Kind())
	}

	return nil
}

// buildGroup validates a group template and pads instances.
func (t *Tree) buildGroup(group *Control) error {
	ids := map[string]bool{}

	for _, c := range group.Controls {
		if err := checkControl(c); err != nil {
			return err
		}

		if c.Type.Container() || c.Type == TypeGroup {
			return fmt.Errorf("%w: %q in group %q", ErrNesting, c.ID, group.ID)
		}

		if ids[c.ID] {
			return fmt.Errorf("%w: %q in group %q", ErrAmbiguousReference, c.ID, group.ID)
		}

		ids[c.ID] = true
	}

	for _, c := range group.Controls {
		for _, id := range c.DependsOn {
			if _, ok := t.index[id]; !ok && !ids[id] {
				return fmt.Errorf("%w: %q referenced by %q in group %q", ErrUnresolvedReference, id, c.ID, group.ID)
			}
		}

		// Effects are confined to the instance.
		for _, id := range c.Affects {
			if !ids[id] {
				return fmt.Errorf("%w: %q affected by %q in group %q", ErrUnresolvedReference, id, c.ID, group.ID)
			}
		}
	}

	for _, instance := range group.Instances {
		if len(instance) != len(group.Controls) {
			return fmt.Errorf("%w: instance of group %q does not match template", ErrNesting, group.ID)
		}

		for _, c := range instance {
			if err := checkControl(c); err != nil {
				return err
			}
		}
	}

	for len(group.Instances) < group.MinInstances {
		group.Instances = append(group.Instances, copyControls(group.Controls))
	}

	// References outside the instance are ignored here, they only order
	// the static graph.
	order, err := topologicalOrder(group.Controls)
	if err != nil {
		return fmt.Errorf("%w: group %q", err, group.ID)
	}

	t.groupOrders[group.ID] = order

	return nil
}

// topologicalOrder orders controls such that any control that affects, or
// is read by, another comes first.  Ties are broken by declaration order
// so the result is total and stable.  References outside the list are
// ignored.
func topologicalOrder(controls []*Control) ([]string, error) {
	position := make(map[string]int, len(controls))

	for i, c := range controls {
		position[c.ID] = i
	}

	edges := make(map[string][]string, len(controls))
	degree := make(map[string]int, len(controls))

	addEdge := func(from, to string) {
		if _, ok := position[from]; !ok {
			return
		}

		if _, ok := position[to]; !ok {
			return
		}

		if slices.Contains(edges[from], to) {
			return
		}

		edges[from] = append(edges[from], to)
		degree[to]++
	}

	for _, c := range controls {
		for _, id := range c.Affects {
			addEdge(c.ID, id)
		}

		for _, id := range c.DependsOn {
			addEdge(id, c.ID)
		}
	}

	var ready []string

	for _, c := range controls {
		if degree[c.ID] == 0 {
			ready = append(ready, c.ID)
		}
	}

	order := make([]string, 0, len(controls))

	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int {
			return position[a] - position[b]
		})

		id := ready[0]
		ready = ready[1:]

		order = append(order, id)

		for _, to := range edges[id] {
			degree[to]--

			if degree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) != len(controls) {
		var cyclic []string

		for _, c := range controls {
			if degree[c.ID] > 0 {
				cyclic = append(cyclic, c.ID)
			}
		}

		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cyclic, ", "))
	}

	return order, nil
}

// walkStatic visits every static control in tree order.
func (t *Tree) walkStatic(callback func(c *Control)) {
	var walk func(controls []*Control)

	walk = func(controls []*Control) {
		for _, c := range controls {
			callback(c)

			if c.Type.Container() {
				walk(c.Controls)
			}
		}
	}

	walk(t.Controls)
}

// Walk visits every control in tree order, parents before children and
// siblings in declaration order.  Group template controls are not visited,
// their instances are.  The path of a container child is its own id.
func (t *Tree) Walk(callback func(c *Control, path Path)) {
	var walk func(controls []*Control)

	walk = func(controls []*Control) {
		for _, c := range controls {
			callback(c, Root(c.ID))

			switch {
			case c.Type.Container():
				walk(c.Controls)
			case c.Type == TypeGroup:
				for i, instance := range c.Instances {
					for _, child := range instance {
						callback(child, InGroup(c.ID, i, child.ID))
					}
				}
			}
		}
	}

	walk(t.Controls)
}

// DeepCopy returns an unaliased copy of the tree.
func (t *Tree) DeepCopy() *Tree {
	if t == nil {
		return nil
	}

	return &Tree{
		Controls:    copyControls(t.Controls),
		index:       t.index,
		order:       t.order,
		groupOrders: t.groupOrders,
	}
}

// Lookup returns a static control by id.
func (t *Tree) Lookup(id string) (*Control, bool) {
	position, ok := t.index[id]
	if !ok {
		return nil, false
	}

	controls := t.Controls

	var c *Control

	for _, i := range position {
		c = controls[i]
		controls = c.Controls
	}

	return c, true
}

// Get returns a static control by id and panics if it doesn't exist.
func (t *Tree) Get(id string) *Control {
	c, ok := t.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("%v: %q", ErrUnresolvedReference, id))
	}

	return c
}

// Find locates any control, including those in group instances.
func (t *Tree) Find(path Path) (*Control, []*Control, error) {
	if path.Group == "" {
		c, ok := t.Lookup(path.ID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrPath, path)
		}

		return c, nil, nil
	}

	group, ok := t.Lookup(path.Group)
	if !ok || group.Type != TypeGroup {
		return nil, nil, fmt.Errorf("%w: %s: no such group", ErrPath, path)
	}

	if path.Instance < 0 || path.Instance >= len(group.Instances) {
		return nil, nil, fmt.Errorf("%w: %s: no such instance", ErrPath, path)
	}

	instance := group.Instances[path.Instance]

	c := findIn(instance, path.ID)
	if c == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPath, path)
	}

	return c, instance, nil
}

// Value returns the active value at a path, or nil.
func (t *Tree) Value(path Path) Value {
	c, _, err := t.Find(path)
	if err != nil {
		return nil
	}

	return c.Active
}

// Steps returns the top level steps, in order.
func (t *Tree) Steps() []*Control {
	var steps []*Control

	for _, c := range t.Controls {
		if c.Type == TypeStep {
			steps = append(steps, c)
		}
	}

	return steps
}

// StepOf returns the id of the step containing the static control, or
// empty if it isn't in one.
func (t *Tree) StepOf(id string) string {
	position, ok := t.index[id]
	if !ok {
		return ""
	}

	if root := t.Controls[position[0]]; root.Type == TypeStep {
		return root.ID
	}

	return ""
}

// Scope returns the view of the tree available to a control's callbacks.
// The instance is the group instance the control lives in, if any.
func (t *Tree) Scope(owner *Control, instance []*Control) *Scope {
	return &Scope{
		tree:     t,
		owner:    owner,
		instance: instance,
	}
}

func findIn(controls []*Control, id string) *Control {
	for _, c := range controls {
		if c.ID == id {
			return c
		}
	}

	return nil
}

// Scope restricts a callback to the controls it declared.
type Scope struct {
	tree     *Tree
	owner    *Control
	instance []*Control
}

// Owner is the control the scope was created for.
func (s *Scope) Owner() *Control {
	return s.owner
}

// Get returns a declared control.  Ids resolve within the owner's group
// instance first, then at the root.  Accessing an undeclared control is a
// wiring mistake and panics.
func (s *Scope) Get(id string) *Control {
	if id == s.owner.ID {
		return s.owner
	}

	if !slices.Contains(s.owner.DependsOn, id) && !slices.Contains(s.owner.Affects, id) {
		panic(fmt.Sprintf("%v: %q accessed by %q", ErrUndeclaredReference, id, s.owner.ID))
	}

	if s.instance != nil {
		if c := findIn(s.instance, id); c != nil {
			return c
		}
	}

	return s.tree.Get(id)
}

// Text is shorthand for Get(id).Text().
func (s *Scope) Text(id string) string {
	return s.Get(id).Text()
}

// Checked is shorthand for Get(id).Checked().
func (s *Scope) Checked(id string) bool {
	return s.Get(id).Checked()
}
