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
	"maps"
	"slices"

	"github.com/mailgun/raymond/v2"

	"github.com/unikorn-cloud/console/pkg/control"
)

// Context gathers the values of visible controls, keyed by id, for use by
// templates.  Containers are flattened, groups become a list of per
// instance objects.  Replacements from selected options are merged in
// alongside the control that selected them, later controls win.
func Context(tree *control.Tree) map[string]any {
	out := map[string]any{}

	addControls(out, tree.Controls)

	return out
}

func addControls(out map[string]any, controls []*control.Control) {
	for _, c := range controls {
		if c.IsHidden {
			continue
		}

		switch c.Type {
		case control.TypeStep, control.TypeSection:
			addControls(out, c.Controls)
		case control.TypeGroup:
			instances := make([]any, 0, len(c.Instances))

			for _, instance := range c.Instances {
				object := map[string]any{}

				addControls(object, instance)

				instances = append(instances, object)
			}

			out[c.ID] = instances
		case control.TypeTitle, control.TypeReview:
		case control.TypeText, control.TypeNumber, control.TypeCheckbox, control.TypeCombobox,
			control.TypeSingleSelect, control.TypeMultiSelect, control.TypeTreeSelect, control.TypeTable,
			control.TypeHidden, control.TypeCustom, control.TypeLabels, control.TypeValues:
			if v := value(c); v != nil {
				out[c.ID] = v
			}

			for _, option := range c.Selected() {
				maps.Copy(out, option.Replacements)
			}
		}
	}
}

func encode(encoding control.Encoding, s string) string {
	switch encoding {
	case control.EncodingBase64:
		return base64.StdEncoding.EncodeToString([]byte(s))
	case control.EncodingNone:
	}

	return s
}

// value converts an active value to plain data.  Key values are sorted
// lists of key/value objects so iteration order is stable.
func value(c *control.Control) any {
	switch v := c.Active.(type) {
	case control.String:
		return encode(c.Encode, string(v))
	case control.Bool:
		return bool(v)
	case control.Strings:
		out := make([]any, len(v))

		for i := range v {
			out[i] = encode(c.Encode, v[i])
		}

		return out
	case control.KeyValues:
		keys := make([]string, 0, len(v))

		for key := range v {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		out := make([]any, len(keys))

		for i, key := range keys {
			out[i] = map[string]any{
				"key":   key,
				"value": encode(c.Encode, v[key]),
			}
		}

		return out
	case control.Rows:
		out := make([]any, len(v))

		for i := range v {
			row := make(map[string]any, len(v[i]))

			for key, cell := range v[i] {
				row[key] = cell
			}

			out[i] = row
		}

		return out
	}

	return nil
}

// safe marks all strings as not needing escaping, output is YAML not HTML.
func safe(in any) any {
	switch t := in.(type) {
	case string:
		return raymond.SafeString(t)
	case []string:
		out := make([]any, len(t))

		for i := range t {
			out[i] = raymond.SafeString(t[i])
		}

		return out
	case []any:
		out := make([]any, len(t))

		for i := range t {
			out[i] = safe(t[i])
		}

		return out
	case map[string]string:
		out := make(map[string]any, len(t))

		for k, v := range t {
			out[k] = raymond.SafeString(v)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(t))

		for k, v := range t {
			out[k] = safe(v)
		}

		return out
	}

	return in
}
