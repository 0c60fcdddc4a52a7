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

package wizard

import (
	"context"
	"fmt"

	"github.com/unikorn-cloud/console/pkg/control"
)

// Answer sets a single control.
type Answer struct {
	// Path is a control path e.g. "workerPools[1].replicas".
	Path string `json:"path"`
	// Value is decoded JSON or YAML, converted to the control's kind.
	Value any `json:"value"`
}

// Request describes a wizard and the answers to replay into it.
type Request struct {
	// Infrastructure selects the provider specific form.
	Infrastructure string `json:"infrastructure,omitempty"`
	// Flags toggle optional features.
	Flags map[string]bool `json:"flags,omitempty"`
	// Answers are applied in order.
	Answers []Answer `json:"answers,omitempty"`
}

// events converts an answer to the events that apply it, adding group
// instances as required.  Counts tracks instance counts across a batch.
func events(tree *control.Tree, answer Answer, counts map[string]int) ([]control.Event, error) {
	path, err := control.ParsePath(answer.Path)
	if err != nil {
		return nil, err
	}

	var out []control.Event

	var c *control.Control

	if path.Group == "" {
		if c, _, err = tree.Find(path); err != nil {
			return nil, err
		}
	} else {
		group, ok := tree.Lookup(path.Group)
		if !ok || group.Type != control.TypeGroup {
			return nil, fmt.Errorf("%w: %s: no such group", control.ErrPath, answer.Path)
		}

		for _, child := range group.Controls {
			if child.ID == path.ID {
				c = child
			}
		}

		if c == nil {
			return nil, fmt.Errorf("%w: %s", control.ErrPath, answer.Path)
		}

		count, ok := counts[path.Group]
		if !ok {
			count = len(group.Instances)
		}

		for ; count <= path.Instance; count++ {
			out = append(out, control.AddInstance{Group: path.Group})
		}

		counts[path.Group] = count
	}

	kind, err := c.Type.ValueKind()
	if err != nil {
		return nil, err
	}

	value, err := control.ParseValue(kind, answer.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, answer.Path)
	}

	return append(out, control.SetValue{Path: path, Value: value}), nil
}

// Apply replays answers into the session as one atomic batch.
func (s *Session) Apply(ctx context.Context, answers []Answer) error {
	tree := s.State().View()

	counts := map[string]int{}

	var all []control.Event

	for _, answer := range answers {
		events, err := events(tree, answer, counts)
		if err != nil {
			return err
		}

		all = append(all, events...)
	}

	return s.Dispatch(ctx, all...)
}
