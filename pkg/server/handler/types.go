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

package handler

import (
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/submit"
	"github.com/unikorn-cloud/console/pkg/validation"
)

// Step describes a wizard page.
type Step struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Wizard describes an available wizard.
type Wizard struct {
	Kind string `json:"kind"`
	// Allowed is true when the caller may create everything the wizard
	// renders with the default configuration.
	Allowed bool   `json:"allowed"`
	Steps   []Step `json:"steps"`
}

// Option is a selectable value.
type Option struct {
	Value    string            `json:"value"`
	Label    string            `json:"label,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Control is the display state of a control.
type Control struct {
	Path     string       `json:"path"`
	Type     control.Type `json:"type"`
	Name     string       `json:"name,omitempty"`
	Step     string       `json:"step,omitempty"`
	Value    any          `json:"value,omitempty"`
	Options  []Option     `json:"options,omitempty"`
	Hidden   bool         `json:"hidden,omitempty"`
	Disabled bool         `json:"disabled,omitempty"`
}

// Error is a validation failure.
type Error struct {
	Path    string          `json:"path"`
	Code    validation.Code `json:"code"`
	Message string          `json:"message"`
}

// Alert reports a failure to load options.
type Alert struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ValidateResponse is the state of a wizard after applying answers.
type ValidateResponse struct {
	Session  string    `json:"session"`
	Valid    bool      `json:"valid"`
	Errors   []Error   `json:"errors,omitempty"`
	Controls []Control `json:"controls"`
}

// RenderResponse holds rendered documents.
type RenderResponse struct {
	Documents []map[string]any `json:"documents"`
}

// OptionsResponse holds freshly loaded options for a control.
type OptionsResponse struct {
	ID      string   `json:"id"`
	Options []Option `json:"options"`
	Alerts  []Alert  `json:"alerts,omitempty"`
}

// Resource identifies a submitted document.
type Resource struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Namespace  string `json:"namespace,omitempty"`
	Name       string `json:"name"`
	Error      string `json:"error,omitempty"`
}

// SubmitResponse reports the outcome for every document.
type SubmitResponse struct {
	Resources []Resource `json:"resources"`
}

// plain converts a value to JSON friendly data.
func plain(value control.Value) any {
	switch v := value.(type) {
	case control.String:
		return string(v)
	case control.Bool:
		return bool(v)
	case control.Strings:
		return []string(v)
	case control.KeyValues:
		return map[string]string(v)
	case control.Rows:
		return []map[string]string(v)
	}

	return nil
}

func convertOptions(in []control.Option) []Option {
	out := make([]Option, len(in))

	for i := range in {
		out[i] = Option{
			Value:    in[i].Value,
			Label:    in[i].Label,
			Metadata: in[i].Metadata,
		}
	}

	return out
}

func convertControls(tree *control.Tree) []Control {
	var out []Control

	tree.Walk(func(c *control.Control, path control.Path) {
		step := path.ID
		if path.Group != "" {
			step = path.Group
		}

		out = append(out, Control{
			Path:     path.String(),
			Type:     c.Type,
			Name:     c.Name,
			Step:     tree.StepOf(step),
			Value:    plain(c.Active),
			Options:  convertOptions(c.Available),
			Hidden:   c.IsHidden,
			Disabled: c.IsDisabled,
		})
	})

	return out
}

func convertErrors(errs validation.Errors) []Error {
	sorted := errs.Sorted()

	out := make([]Error, len(sorted))

	for i, err := range sorted {
		out[i] = Error{
			Path:    err.Path.String(),
			Code:    err.Code,
			Message: err.Message,
		}
	}

	return out
}

func convertAlerts(alerts []control.Alert) []Alert {
	out := make([]Alert, len(alerts))

	for i := range alerts {
		out[i] = Alert{
			ID:      alerts[i].ID,
			Message: alerts[i].Err.Error(),
		}
	}

	return out
}

func convertResults(results submit.Results) []Resource {
	out := make([]Resource, len(results))

	for i, result := range results {
		out[i] = Resource{
			APIVersion: result.Object.GetAPIVersion(),
			Kind:       result.Object.GetKind(),
			Namespace:  result.Object.GetNamespace(),
			Name:       result.Object.GetName(),
		}

		if result.Err != nil {
			out[i].Error = result.Err.Error()
		}
	}

	return out
}
