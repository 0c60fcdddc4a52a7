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

package render

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/unikorn-cloud/console/pkg/control"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// document returns the index'th document of the given kind.
func document(documents []*unstructured.Unstructured, kind string, index int) (*unstructured.Unstructured, bool) {
	for _, d := range documents {
		if d.GetKind() != kind {
			continue
		}

		if index == 0 {
			return d, true
		}

		index--
	}

	return nil, false
}

// lookup follows a field path through nested objects.
func lookup(object any, fields []string) (any, bool) {
	current := object

	for _, field := range fields {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		if field == "*" {
			if len(m) == 0 {
				return nil, false
			}

			keys := make([]string, 0, len(m))

			for key := range m {
				keys = append(keys, key)
			}

			slices.Sort(keys)

			field = keys[0]
		}

		if current, ok = m[field]; !ok {
			return nil, false
		}
	}

	return current, true
}

// parse converts raw document data to a control value, undoing encoding.
func parse(c *control.Control, raw any) (control.Value, error) {
	kind, err := c.Type.ValueKind()
	if err != nil {
		return nil, err
	}

	if s, ok := raw.(string); ok && c.Encode == control.EncodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrDecode, c.ID, err)
		}

		raw = string(decoded)
	}

	value, err := control.ParseValue(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrDecode, c.ID, err)
	}

	return value, nil
}

type reverser struct {
	documents []*unstructured.Unstructured
	load      *control.Load
}

func (r *reverser) locate(path *control.ReversePath) (any, bool) {
	d, ok := document(r.documents, path.Kind, path.Index)
	if !ok {
		return nil, false
	}

	return lookup(d.Object, path.Fields)
}

func (r *reverser) assign(path control.Path, c *control.Control, raw any) error {
	value, err := parse(c, raw)
	if err != nil {
		return err
	}

	if value == nil {
		return nil
	}

	r.load.Assignments = append(r.load.Assignments, control.Assignment{
		Path:  path,
		Value: value,
	})

	return nil
}

func (r *reverser) group(c *control.Control) error {
	raw, ok := r.locate(c.Reverse)
	if !ok {
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: %q is not a list", ErrDecode, c.ID)
	}

	r.load.Instances[c.ID] = len(list)

	for i, item := range list {
		for _, child := range c.Controls {
			if child.Reverse == nil {
				continue
			}

			raw, ok := lookup(item, child.Reverse.Fields)
			if !ok {
				continue
			}

			if err := r.assign(control.InGroup(c.ID, i, child.ID), child, raw); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *reverser) controls(controls []*control.Control) error {
	for _, c := range controls {
		if c.Type.Container() {
			if err := r.controls(c.Controls); err != nil {
				return err
			}

			continue
		}

		if c.Reverse == nil {
			continue
		}

		if c.Type == control.TypeGroup {
			if err := r.group(c); err != nil {
				return err
			}

			continue
		}

		raw, ok := r.locate(c.Reverse)
		if !ok {
			continue
		}

		if err := r.assign(control.Root(c.ID), c, raw); err != nil {
			return err
		}
	}

	return nil
}

// Reverse extracts control values from previously rendered documents,
// using each control's reverse path.  The result is dispatched to a
// fresh state to edit an existing resource.  Values that are absent
// from the documents are left unassigned.
func Reverse(tree *control.Tree, documents []*unstructured.Unstructured) (*control.Load, error) {
	r := &reverser{
		documents: documents,
		load: &control.Load{
			Instances: map[string]int{},
		},
	}

	if err := r.controls(tree.Controls); err != nil {
		return nil, err
	}

	return r.load, nil
}
