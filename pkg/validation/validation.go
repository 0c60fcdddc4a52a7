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

package validation

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/unikorn-cloud/console/pkg/control"

	utilvalidation "k8s.io/apimachinery/pkg/util/validation"
)

// Code classifies a validation failure.
type Code string

const (
	// CodeRequired is returned when a required value is empty.
	CodeRequired Code = "required"
	// CodeConstraint is returned when a value doesn't match its pattern
	// or isn't a number when it should be.
	CodeConstraint Code = "constraint"
	// CodeRange is returned when a number is out of bounds.
	CodeRange Code = "range"
	// CodeContext is returned by contextual testers.
	CodeContext Code = "context"
)

const (
	// MessageRequired is reported for missing required values.
	MessageRequired = "missing required value"
	// MessageConstraint and MessageNumber are reported when the control
	// doesn't define its own notification.
	MessageConstraint = "invalid value"
	MessageNumber     = "value must be a whole number"
	// MessageRange is reported for numbers outside their bounds.
	MessageRange = "value out of range"
	// MessageOption is reported for selections that aren't available.
	MessageOption = "value is not an available option"
	// MessageLabel is reported for label keys or values that Kubernetes
	// would reject.
	MessageLabel = "invalid label"
)

//nolint:gochecknoglobals
var numeric = regexp.MustCompile(`^-?\d+$`)

// Error is a user correctable problem with a single control.
type Error struct {
	// Path locates the control.
	Path control.Path
	// Code is a machine readable classification.
	Code Code
	// Message is the user facing message or message key.
	Message string
}

func (e *Error) Error() string {
	return e.Path.String() + ": " + e.Message
}

// Errors maps control paths, in string form, to the first error found.
type Errors map[string]*Error

func (e Errors) add(path control.Path, code Code, message string) {
	e[path.String()] = &Error{
		Path:    path,
		Code:    code,
		Message: message,
	}
}

// CanSubmit is true when there are no errors.
func (e Errors) CanSubmit() bool {
	return len(e) == 0
}

// Invalid is true if the control has an error.  A group or table is
// invalid if any of its instances or cells are.  Steps and sections are
// layout only and never match, use ByStep for those.
func (e Errors) Invalid(id string) bool {
	for key, err := range e {
		if key == id || err.Path.Group == id {
			return true
		}
	}

	return false
}

// Sorted returns errors ordered by path.
func (e Errors) Sorted() []*Error {
	out := make([]*Error, 0, len(e))

	for _, err := range e {
		out = append(out, err)
	}

	slices.SortFunc(out, func(a, b *Error) int {
		return strings.Compare(a.Path.String(), b.Path.String())
	})

	return out
}

// ByStep groups errors by the step containing the control, so a wizard
// can decide whether to allow navigation.  Controls outside a step are
// keyed by the empty string.
func (e Errors) ByStep(tree *control.Tree) map[string][]*Error {
	out := map[string][]*Error{}

	for _, err := range e.Sorted() {
		id := err.Path.ID
		if err.Path.Group != "" {
			id = err.Path.Group
		}

		step := tree.StepOf(id)

		out[step] = append(out[step], err)
	}

	return out
}

// Validate checks every visible, enabled control against its rules.  It
// doesn't modify the tree.
func Validate(tree *control.Tree) Errors {
	errs := Errors{}

	for _, c := range tree.Controls {
		validateControl(tree, errs, c, control.Root(c.ID), nil)
	}

	return errs
}

//nolint:cyclop
func validateControl(tree *control.Tree, errs Errors, c *control.Control, path control.Path, instance []*control.Control) {
	if c.IsHidden || c.IsDisabled {
		return
	}

	switch c.Type {
	case control.TypeStep, control.TypeSection:
		for _, child := range c.Controls {
			validateControl(tree, errs, child, control.Root(child.ID), nil)
		}

		return
	case control.TypeGroup:
		for i, instance := range c.Instances {
			for _, child := range instance {
				validateControl(tree, errs, child, control.InGroup(c.ID, i, child.ID), instance)
			}
		}

		return
	case control.TypeTable:
		validateRows(errs, c)
	case control.TypeSingleSelect, control.TypeMultiSelect, control.TypeTreeSelect:
		if !available(c) {
			errs.add(path, CodeConstraint, notification(c.Validation, MessageOption))
			return
		}
	case control.TypeLabels:
		if !labels(c.Active) {
			errs.add(path, CodeConstraint, notification(c.Validation, MessageLabel))
			return
		}
	case control.TypeTitle, control.TypeReview, control.TypeText, control.TypeNumber, control.TypeCheckbox,
		control.TypeCombobox, control.TypeHidden, control.TypeCustom, control.TypeValues:
	}

	rules := c.Validation

	if rules == nil {
		// Numbers are always checked for syntax.
		if c.Type != control.TypeNumber {
			return
		}

		rules = &control.Validation{}
	}

	if code, message := check(c.Type, c.Active, rules); code != "" {
		errs.add(path, code, message)
		return
	}

	if rules.Tester == nil {
		return
	}

	if err := rules.Tester(c.Active, tree.Scope(c, instance)); err != nil {
		errs.add(path, CodeContext, err.Error())
	}
}

// validateRows checks table cells against their column rules.  Cell errors
// are addressed as table[row].column.
func validateRows(errs Errors, c *control.Control) {
	rows, _ := c.Active.(control.Rows)

	for i, row := range rows {
		for _, column := range c.Columns {
			if column.Validation == nil {
				continue
			}

			var value control.Value

			if cell, ok := row[column.ID]; ok {
				value = control.String(cell)
			}

			if code, message := check(control.TypeText, value, column.Validation); code != "" {
				errs.add(control.InGroup(c.ID, i, column.ID), code, message)
			}
		}
	}
}

// check applies the static rules in order, required then the pattern then
// numeric parsing and bounds.
func check(t control.Type, value control.Value, v *control.Validation) (Code, string) {
	if value == nil || value.IsEmpty() {
		if v.Required {
			return CodeRequired, MessageRequired
		}

		return "", ""
	}

	s, ok := value.(control.String)
	if !ok {
		return "", ""
	}

	if v.Constraint != nil && !v.Constraint.MatchString(string(s)) {
		return CodeConstraint, notification(v, MessageConstraint)
	}

	if t != control.TypeNumber && v.Minimum == nil && v.Maximum == nil {
		return "", ""
	}

	if !numeric.MatchString(string(s)) {
		return CodeConstraint, notification(v, MessageNumber)
	}

	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return CodeConstraint, notification(v, MessageNumber)
	}

	if v.Minimum != nil && n < *v.Minimum {
		return CodeRange, notification(v, MessageRange)
	}

	if v.Maximum != nil && n > *v.Maximum {
		return CodeRange, notification(v, MessageRange)
	}

	return "", ""
}

// available checks selections against the options.  Comboboxes accept
// free text, and options that haven't been loaded yet can't be checked.
func available(c *control.Control) bool {
	if len(c.Available) == 0 {
		return true
	}

	var values []string

	switch v := c.Active.(type) {
	case control.String:
		if v != "" {
			values = []string{string(v)}
		}
	case control.Strings:
		values = v
	}

	for _, value := range values {
		if _, ok := c.Option(value); !ok {
			return false
		}
	}

	return true
}

// labels checks keys are qualified names and values are valid label values.
func labels(value control.Value) bool {
	kv, ok := value.(control.KeyValues)
	if !ok {
		return true
	}

	for key, v := range kv {
		if len(utilvalidation.IsQualifiedName(key)) != 0 || len(utilvalidation.IsValidLabelValue(v)) != 0 {
			return false
		}
	}

	return true
}

func notification(v *control.Validation, fallback string) string {
	if v != nil && v.Notification != "" {
		return v.Notification
	}

	return fallback
}
