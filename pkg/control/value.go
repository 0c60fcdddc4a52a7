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
	"slices"
	"strconv"
	"strings"
)

// ValueKind is the shape of a control's active value.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindBool
	KindStrings
	KindKeyValues
	KindRows
	KindInstances
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindStrings:
		return "strings"
	case KindKeyValues:
		return "keyvalues"
	case KindRows:
		return "rows"
	case KindInstances:
		return "instances"
	}

	return "unknown"
}

// Value is the active value of a control.  The set of implementations is
// closed, one per ValueKind that carries data.
type Value interface {
	// Kind returns the value's shape.
	Kind() ValueKind
	// IsEmpty is true when a required value is missing.
	IsEmpty() bool
	// DeepCopyValue returns an unaliased copy.
	DeepCopyValue() Value

	isValue()
}

// String is used by free text, numeric and single choice controls.
type String string

func (String) Kind() ValueKind { return KindString }

func (v String) IsEmpty() bool { return strings.TrimSpace(string(v)) == "" }

func (v String) DeepCopyValue() Value { return v }

func (String) isValue() {}

// Bool is used by checkboxes.  An unchecked box counts as empty.
type Bool bool

func (Bool) Kind() ValueKind { return KindBool }

func (v Bool) IsEmpty() bool { return !bool(v) }

func (v Bool) DeepCopyValue() Value { return v }

func (Bool) isValue() {}

// Strings is used by multiple choice controls.
type Strings []string

func (Strings) Kind() ValueKind { return KindStrings }

func (v Strings) IsEmpty() bool { return len(v) == 0 }

func (v Strings) DeepCopyValue() Value { return slices.Clone(v) }

func (Strings) isValue() {}

// KeyValues is used by label and value editors.
type KeyValues map[string]string

func (KeyValues) Kind() ValueKind { return KindKeyValues }

func (v KeyValues) IsEmpty() bool { return len(v) == 0 }

func (v KeyValues) DeepCopyValue() Value { return maps.Clone(v) }

func (KeyValues) isValue() {}

// Rows is used by tables, one map of column id to cell per row.
type Rows []map[string]string

func (Rows) Kind() ValueKind { return KindRows }

func (v Rows) IsEmpty() bool { return len(v) == 0 }

func (v Rows) DeepCopyValue() Value {
	if v == nil {
		return Rows(nil)
	}

	out := make(Rows, len(v))

	for i := range v {
		out[i] = maps.Clone(v[i])
	}

	return out
}

func (Rows) isValue() {}

// scalar converts a decoded JSON/YAML scalar to its string form.
func scalar(in any) (string, error) {
	switch t := in.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported scalar %T", ErrValueKind, in)
}

// ParseValue converts generic decoded data, as found in JSON requests or
// unstructured documents, into a value of the requested kind.
//
//nolint:cyclop
func ParseValue(kind ValueKind, in any) (Value, error) {
	if in == nil {
		return nil, nil //nolint:nilnil
	}

	switch kind {
	case KindString:
		s, err := scalar(in)
		if err != nil {
			return nil, err
		}

		return String(s), nil
	case KindBool:
		switch t := in.(type) {
		case bool:
			return Bool(t), nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrValueKind, err)
			}

			return Bool(b), nil
		}
	case KindStrings:
		list, ok := in.([]any)
		if !ok {
			break
		}

		out := make(Strings, 0, len(list))

		for _, item := range list {
			s, err := scalar(item)
			if err != nil {
				return nil, err
			}

			out = append(out, s)
		}

		return out, nil
	case KindKeyValues:
		object, ok := in.(map[string]any)
		if !ok {
			break
		}

		out := make(KeyValues, len(object))

		for k, v := range object {
			s, err := scalar(v)
			if err != nil {
				return nil, err
			}

			out[k] = s
		}

		return out, nil
	case KindRows:
		list, ok := in.([]any)
		if !ok {
			break
		}

		out := make(Rows, 0, len(list))

		for _, item := range list {
			row, err := ParseValue(KindKeyValues, item)
			if err != nil {
				return nil, err
			}

			if row == nil {
				row = KeyValues{}
			}

			//nolint:forcetypeassert
			out = append(out, map[string]string(row.(KeyValues)))
		}

		return out, nil
	case KindNone, KindInstances:
	}

	return nil, fmt.Errorf("%w: cannot convert %T to %v", ErrValueKind, in, kind)
}
