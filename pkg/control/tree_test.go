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

//nolint:testpackage
package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var regions = map[string][]string{
	"aws": {"us-east-1", "eu-west-1"},
	"gcp": {"europe-west1", "us-central1"},
}

func options(values ...string) []Option {
	out := make([]Option, len(values))

	for i, value := range values {
		out[i] = Option{Value: value, Label: value}
	}

	return out
}

// fixtureControls generates a tree that exercises chained effects, a
// hidden section and a group.  The counter records provider effect runs.
func fixtureControls(counter *int) []*Control {
	return []*Control{
		{
			ID:   "infrastructure",
			Type: TypeStep,
			Controls: []*Control{
				{
					ID:        "provider",
					Type:      TypeSingleSelect,
					Available: options("aws", "gcp"),
					Active:    String("aws"),
					Affects:   []string{"region"},
					OnSelect: func(c *Control, s *Scope) error {
						*counter++

						region := s.Get("region")
						region.Available = options(regions[c.Text()]...)
						Select(region)

						return nil
					},
				},
				{
					ID:        "region",
					Type:      TypeSingleSelect,
					Available: options(regions["aws"]...),
					Active:    String("us-east-1"),
					Affects:   []string{"zone"},
					OnSelect: func(c *Control, s *Scope) error {
						s.Get("zone").Active = String(c.Text() + "a")

						return nil
					},
				},
				{
					ID:     "zone",
					Type:   TypeText,
					Active: String("us-east-1a"),
				},
			},
		},
		{
			ID:   "options",
			Type: TypeStep,
			Controls: []*Control{
				{
					ID:   "advanced",
					Type: TypeCheckbox,
				},
				{
					ID:        "extra",
					Type:      TypeSection,
					DependsOn: []string{"advanced"},
					Hidden: func(c *Control, s *Scope) bool {
						return !s.Checked("advanced")
					},
					Controls: []*Control{
						{
							ID:   "port",
							Type: TypeNumber,
						},
					},
				},
				{
					ID:           "pools",
					Type:         TypeGroup,
					MinInstances: 1,
					Controls: []*Control{
						{
							ID:        "size",
							Type:      TypeSingleSelect,
							Available: options("small", "large"),
							Affects:   []string{"cpus"},
							OnSelect: func(c *Control, s *Scope) error {
								cpus := "2"
								if c.Text() == "large" {
									cpus = "8"
								}

								s.Get("cpus").Active = String(cpus)

								return nil
							},
						},
						{
							ID:   "cpus",
							Type: TypeText,
						},
					},
				},
			},
		},
	}
}

func fixtureTree(t *testing.T, counter *int) *Tree {
	t.Helper()

	tree, err := Build(fixtureControls(counter))
	require.NoError(t, err)

	return tree
}

func TestBuild(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)

	require.Len(t, tree.Steps(), 2)
	require.Equal(t, "options", tree.StepOf("port"))
	require.Equal(t, "infrastructure", tree.StepOf("zone"))

	port, ok := tree.Lookup("port")
	require.True(t, ok)
	require.Equal(t, TypeNumber, port.Type)

	pools := tree.Get("pools")
	require.Len(t, pools.Instances, 1)

	require.Equal(t, []string{"size", "cpus"}, tree.groupOrders["pools"])

	// Effects order the graph, everything else keeps declaration order.
	require.Less(t, slicesIndex(tree.order, "provider"), slicesIndex(tree.order, "region"))
	require.Less(t, slicesIndex(tree.order, "region"), slicesIndex(tree.order, "zone"))
}

func slicesIndex(s []string, v string) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}

	return -1
}

func TestBuildDependencyOrderTieBreak(t *testing.T) {
	t.Parallel()

	tree, err := Build([]*Control{
		{ID: "c", Type: TypeText, DependsOn: []string{"b"}},
		{ID: "a", Type: TypeText},
		{ID: "b", Type: TypeText},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, tree.order)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		controls []*Control
		err      error
	}{
		{
			name: "MissingID",
			controls: []*Control{
				{Type: TypeText},
			},
			err: ErrMissingID,
		},
		{
			name: "UnknownType",
			controls: []*Control{
				{ID: "a", Type: "slider"},
			},
			err: ErrUnknownType,
		},
		{
			name: "ValueKind",
			controls: []*Control{
				{ID: "a", Type: TypeCheckbox, Active: String("yes")},
			},
			err: ErrValueKind,
		},
		{
			name: "Ambiguous",
			controls: []*Control{
				{ID: "a", Type: TypeStep, Controls: []*Control{{ID: "name", Type: TypeText}}},
				{ID: "b", Type: TypeStep, Controls: []*Control{{ID: "name", Type: TypeText}}},
			},
			err: ErrAmbiguousReference,
		},
		{
			name: "Unresolved",
			controls: []*Control{
				{ID: "a", Type: TypeText, DependsOn: []string{"missing"}},
			},
			err: ErrUnresolvedReference,
		},
		{
			name: "Cycle",
			controls: []*Control{
				{ID: "a", Type: TypeText, Affects: []string{"b"}},
				{ID: "b", Type: TypeText, Affects: []string{"a"}},
			},
			err: ErrDependencyCycle,
		},
		{
			name: "NestedGroup",
			controls: []*Control{
				{ID: "g", Type: TypeGroup, Controls: []*Control{{ID: "s", Type: TypeSection}}},
			},
			err: ErrNesting,
		},
		{
			name: "GroupEffectEscapes",
			controls: []*Control{
				{ID: "name", Type: TypeText},
				{ID: "g", Type: TypeGroup, Controls: []*Control{{ID: "x", Type: TypeText, Affects: []string{"name"}}}},
			},
			err: ErrUnresolvedReference,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(test.controls)
			require.ErrorIs(t, err, test.err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	path, err := ParsePath("pools[2].size")
	require.NoError(t, err)
	require.Equal(t, InGroup("pools", 2, "size"), path)
	require.Equal(t, "pools[2].size", path.String())

	path, err = ParsePath("name")
	require.NoError(t, err)
	require.Equal(t, Root("name"), path)

	for _, bad := range []string{"", "[1].x", "a[x].b", "a[1].", "a[-1].b"} {
		_, err := ParsePath(bad)
		require.ErrorIs(t, err, ErrPath, bad)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)

	c, instance, err := tree.Find(InGroup("pools", 0, "cpus"))
	require.NoError(t, err)
	require.Equal(t, "cpus", c.ID)
	require.Len(t, instance, 2)

	_, _, err = tree.Find(InGroup("pools", 1, "cpus"))
	require.ErrorIs(t, err, ErrPath)

	_, _, err = tree.Find(InGroup("zone", 0, "cpus"))
	require.ErrorIs(t, err, ErrPath)

	require.Equal(t, String("us-east-1a"), tree.Value(Root("zone")))
	require.Nil(t, tree.Value(Root("missing")))
}

func TestScopeUndeclaredPanics(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)

	provider := tree.Get("provider")
	scope := tree.Scope(provider, nil)

	require.Equal(t, "region", scope.Get("region").ID)
	require.Same(t, provider, scope.Owner())
	require.Panics(t, func() {
		scope.Get("zone")
	})
}

func TestDeepCopy(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)
	clone := tree.DeepCopy()

	clone.Get("zone").Active = String("changed")
	clone.Get("pools").Instances[0][1].Active = String("4")

	require.Equal(t, String("us-east-1a"), tree.Get("zone").Active)
	require.Nil(t, tree.Get("pools").Instances[0][1].Active)
}
