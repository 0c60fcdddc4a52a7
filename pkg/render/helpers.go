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
	"reflect"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/mailgun/raymond/v2"
)

// helpers are the only functions available to templates.  Block helpers
// return SafeString so nested output isn't escaped twice.
func helpers() map[string]any {
	return map[string]any{
		"versionAtLeast":  versionAtLeast,
		"semverCompare":   semverCompare,
		"arrayItemHasKey": arrayItemHasKey,
		"b64enc":          b64enc,
		"quote":           quote,
		"default":         defaultValue,
		"join":            join,
		"concat":          concat,
	}
}

// versionAtLeast is true when the version is greater than or equal to the
// minimum, invalid versions never match.
func versionAtLeast(version, minimum any) bool {
	v, err := semver.NewVersion(raymond.Str(version))
	if err != nil {
		return false
	}

	m, err := semver.NewVersion(raymond.Str(minimum))
	if err != nil {
		return false
	}

	return !v.LessThan(m)
}

// semverCompare checks a version against a constraint e.g. ">= 1.2, < 2".
func semverCompare(constraint, version any) bool {
	c, err := semver.NewConstraint(raymond.Str(constraint))
	if err != nil {
		return false
	}

	v, err := semver.NewVersion(raymond.Str(version))
	if err != nil {
		return false
	}

	return c.Check(v)
}

// items converts any list to a generic slice.
func items(list any) []any {
	if list == nil {
		return nil
	}

	if l, ok := list.([]any); ok {
		return l
	}

	v := reflect.ValueOf(list)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}

	out := make([]any, v.Len())

	for i := range out {
		out[i] = v.Index(i).Interface()
	}

	return out
}

// arrayItemHasKey renders its block if any item in the list has a truthy
// value for the key, and its inverse otherwise.
func arrayItemHasKey(list, key any, options *raymond.Options) raymond.SafeString {
	k := raymond.Str(key)

	for _, item := range items(list) {
		object, ok := item.(map[string]any)
		if !ok {
			continue
		}

		if raymond.IsTrue(object[k]) {
			return raymond.SafeString(options.Fn())
		}
	}

	return raymond.SafeString(options.Inverse())
}

func b64enc(value any) raymond.SafeString {
	return raymond.SafeString(base64.StdEncoding.EncodeToString([]byte(raymond.Str(value))))
}

// quote emits a double quoted scalar, which is valid YAML.
func quote(value any) raymond.SafeString {
	return raymond.SafeString(strconv.Quote(raymond.Str(value)))
}

func defaultValue(value, fallback any) any {
	if raymond.IsTrue(value) {
		return value
	}

	return fallback
}

func join(list, separator any) raymond.SafeString {
	l := items(list)

	out := make([]string, len(l))

	for i := range l {
		out[i] = raymond.Str(l[i])
	}

	return raymond.SafeString(strings.Join(out, raymond.Str(separator)))
}

// concat joins two values, for names derived from user input.
func concat(a, b any) string {
	return raymond.Str(a) + raymond.Str(b)
}
