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
	"fmt"
	"maps"
	"regexp"
)

// Type is the closed vocabulary of control types.
type Type string

const (
	TypeStep         Type = "step"
	TypeTitle        Type = "title"
	TypeSection      Type = "section"
	TypeText         Type = "text"
	TypeNumber       Type = "number"
	TypeCheckbox     Type = "checkbox"
	TypeCombobox     Type = "combobox"
	TypeSingleSelect Type = "singleselect"
	TypeMultiSelect  Type = "multiselect"
	TypeTreeSelect   Type = "treeselect"
	TypeTable        Type = "table"
	TypeGroup        Type = "group"
	TypeHidden       Type = "hidden"
	TypeCustom       Type = "custom"
	TypeReview       Type = "review"
	TypeLabels       Type = "labels"
	TypeValues       Type = "values"
)

// ValueKind returns the shape of value a control type holds.
func (t Type) ValueKind() (ValueKind, error) {
	switch t {
	case TypeStep, TypeTitle, TypeSection, TypeReview:
		return KindNone, nil
	case TypeText, TypeNumber, TypeCombobox, TypeSingleSelect, TypeHidden, TypeCustom:
		return KindString, nil
	case TypeCheckbox:
		return KindBool, nil
	case TypeMultiSelect, TypeTreeSelect:
		return KindStrings, nil
	case TypeLabels, TypeValues:
		return KindKeyValues, nil
	case TypeTable:
		return KindRows, nil
	case TypeGroup:
		return KindInstances, nil
	}

	return KindNone, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Container is true for layout types whose children are part of the static tree.
func (t Type) Container() bool {
	return t == TypeStep || t == TypeSection
}

// Selectable is true for types whose values are drawn from Available.
func (t Type) Selectable() bool {
	return t == TypeSingleSelect || t == TypeCombobox || t == TypeMultiSelect || t == TypeTreeSelect
}

// Encoding is an optional transform applied to a value before it is
// substituted into a template.
type Encoding string

const (
	EncodingNone   Encoding = ""
	EncodingBase64 Encoding = "base64"
)

// Option is one permitted value of a selectable control.
type Option struct {
	// Value is what is stored as the control's active value.
	Value string
	// Label is the display string or message key.
	Label string
	// Metadata is opaque data attached by whatever produced the option
	// e.g. the infrastructure provider of a credential.
	Metadata map[string]string
	// Replacements are injected into the template context when the
	// option is selected.  Values are treated as immutable.
	Replacements map[string]any
}

// DeepCopy returns a copy of the option.
func (o Option) DeepCopy() Option {
	o.Metadata = maps.Clone(o.Metadata)
	o.Replacements = maps.Clone(o.Replacements)

	return o
}

func copyOptions(in []Option) []Option {
	if in == nil {
		return nil
	}

	out := make([]Option, len(in))

	for i := range in {
		out[i] = in[i].DeepCopy()
	}

	return out
}

// Validation describes the rules applied to a control's active value.
type Validation struct {
	// Required values must not be empty.
	Required bool
	// Constraint must match non-empty string values.
	Constraint *regexp.Regexp
	// Notification is the message reported when the constraint fails.
	Notification string
	// Minimum and Maximum bound numeric values.
	Minimum *int64
	Maximum *int64
	// Tester performs contextual checks against the rest of the tree, it
	// may only read controls declared in DependsOn.
	Tester Tester
}

// Column describes one column of a table control.
type Column struct {
	ID         string
	Name       string
	Validation *Validation
}

// ReversePath locates a value in a rendered document.  Kind and Index
// select the Index'th document of that kind, and are ignored for controls
// inside groups whose paths are relative to the group's list item.
// A field of "*" matches any key, the first in sorted order wins.
type ReversePath struct {
	Kind   string
	Index  int
	Fields []string
}

// Reverse is shorthand for a path into the first document of a kind.
func Reverse(kind string, fields ...string) *ReversePath {
	return &ReversePath{
		Kind:   kind,
		Fields: fields,
	}
}

// Relative is shorthand for a path relative to a group list item.
func Relative(fields ...string) *ReversePath {
	return &ReversePath{
		Fields: fields,
	}
}

// Predicate computes derived boolean state e.g. visibility.
type Predicate func(c *Control, s *Scope) bool

// Effect is run after a control's value changes, it may only mutate
// controls declared in Affects.
type Effect func(c *Control, s *Scope) error

// Tester validates a value in context, returning a user facing error.
type Tester func(value Value, s *Scope) error

// AvailableFunc computes a control's options from the rest of the tree.
type AvailableFunc func(c *Control, s *Scope) []Option

// Control is a node in the form tree.
type Control struct {
	// ID is unique within the containing list.
	ID string
	// Type determines the shape of the value and how it is handled.
	Type Type
	// Name is the display string or message key.
	Name string
	// Active is the current value, nil when unset.
	Active Value
	// Available is the list of permitted values.
	Available []Option
	// AvailableFunc, when set, recomputes Available on every pass.
	AvailableFunc AvailableFunc
	// Validation rules, if any.
	Validation *Validation
	// Columns define table cells.
	Columns []Column
	// Hidden and Disabled are re-evaluated on every pass.
	Hidden   Predicate
	Disabled Predicate
	// OnSelect runs when Active changes.
	OnSelect Effect
	// DependsOn lists the ids read by predicates, testers and available
	// functions.
	DependsOn []string
	// Affects lists the ids OnSelect may mutate.
	Affects []string
	// Controls are the children of containers, or the instance template
	// of a group.  Group templates are never mutated.
	Controls []*Control
	// Instances are the repeated copies of a group's template.
	Instances [][]*Control
	// MinInstances bounds instance removal.
	MinInstances int
	// Reverse locates the value in a rendered document for editing.
	Reverse *ReversePath
	// Encode is applied before template substitution.
	Encode Encoding

	// IsHidden is derived from Hidden and any hidden ancestor.
	IsHidden bool
	// IsDisabled is derived from Disabled and any disabled ancestor.
	IsDisabled bool
}

// DeepCopy copies the control and everything it owns.  Functions,
// dependency declarations and group templates are shared.
func (c *Control) DeepCopy() *Control {
	if c == nil {
		return nil
	}

	out := *c

	if c.Active != nil {
		out.Active = c.Active.DeepCopyValue()
	}

	out.Available = copyOptions(c.Available)

	if c.Type.Container() {
		out.Controls = copyControls(c.Controls)
	}

	if c.Instances != nil {
		out.Instances = make([][]*Control, len(c.Instances))

		for i := range c.Instances {
			out.Instances[i] = copyControls(c.Instances[i])
		}
	}

	return &out
}

func copyControls(in []*Control) []*Control {
	if in == nil {
		return nil
	}

	out := make([]*Control, len(in))

	for i := range in {
		out[i] = in[i].DeepCopy()
	}

	return out
}

// Text returns the active value as a string, or empty if unset or of
// another kind.
func (c *Control) Text() string {
	if v, ok := c.Active.(String); ok {
		return string(v)
	}

	return ""
}

// Checked returns the active value as a boolean.
func (c *Control) Checked() bool {
	if v, ok := c.Active.(Bool); ok {
		return bool(v)
	}

	return false
}

// List returns the active value as a list.
func (c *Control) List() []string {
	if v, ok := c.Active.(Strings); ok {
		return v
	}

	return nil
}

// Option returns the available option matching the value, if any.
func (c *Control) Option(value string) (Option, bool) {
	for _, option := range c.Available {
		if option.Value == value {
			return option, true
		}
	}

	return Option{}, false
}

// Selected returns the available options matching the active value.
func (c *Control) Selected() []Option {
	var values []string

	switch v := c.Active.(type) {
	case String:
		values = []string{string(v)}
	case Strings:
		values = v
	default:
		return nil
	}

	var out []Option

	for _, value := range values {
		if option, ok := c.Option(value); ok {
			out = append(out, option)
		}
	}

	return out
}
