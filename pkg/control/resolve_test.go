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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// values captures every active value by path.
func values(tree *Tree) map[string]Value {
	out := map[string]Value{}

	tree.Walk(func(c *Control, path Path) {
		out[path.String()] = c.Active
	})

	return out
}

func TestResolveInitialRunsNoEffects(t *testing.T) {
	t.Parallel()

	var counter int

	tree, err := Resolve(fixtureTree(t, &counter), nil)
	require.NoError(t, err)
	require.Zero(t, counter)
	require.Equal(t, String("us-east-1a"), tree.Get("zone").Active)

	// Hidden section children inherit visibility.
	require.True(t, tree.Get("extra").IsHidden)
	require.True(t, tree.Get("port").IsHidden)
	require.False(t, tree.Get("advanced").IsHidden)
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	var counter int

	first, err := Resolve(fixtureTree(t, &counter), nil)
	require.NoError(t, err)

	second, err := Resolve(first, nil)
	require.NoError(t, err)

	require.Equal(t, values(first), values(second))
	require.Equal(t, first.Get("port").IsHidden, second.Get("port").IsHidden)
}

func TestResolveEffectChain(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)
	tree.Get("provider").Active = String("gcp")

	path := Root("provider")

	resolved, err := Resolve(tree, &path)
	require.NoError(t, err)
	require.Equal(t, 1, counter)

	region := resolved.Get("region")
	require.Equal(t, options(regions["gcp"]...), region.Available)
	require.Equal(t, String("europe-west1"), region.Active)
	require.Equal(t, String("europe-west1a"), resolved.Get("zone").Active)

	// The input is untouched.
	require.Equal(t, String("us-east-1"), tree.Get("region").Active)
}

func TestResolveVisibility(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)
	tree.Get("advanced").Active = Bool(true)

	path := Root("advanced")

	resolved, err := Resolve(tree, &path)
	require.NoError(t, err)
	require.False(t, resolved.Get("extra").IsHidden)
	require.False(t, resolved.Get("port").IsHidden)
}

func TestResolveGroupInstance(t *testing.T) {
	t.Parallel()

	var counter int

	tree := fixtureTree(t, &counter)

	pools := tree.Get("pools")
	pools.Instances = append(pools.Instances, copyControls(pools.Controls))
	pools.Instances[1][0].Active = String("large")

	path := InGroup("pools", 1, "size")

	resolved, err := Resolve(tree, &path)
	require.NoError(t, err)

	require.Nil(t, resolved.Value(InGroup("pools", 0, "cpus")))
	require.Equal(t, String("8"), resolved.Value(InGroup("pools", 1, "cpus")))

	// The template is never touched.
	require.Nil(t, resolved.Get("pools").Controls[1].Active)
}

func TestResolveEffectError(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("broken")

	tree, err := Build([]*Control{
		{
			ID:   "a",
			Type: TypeText,
			OnSelect: func(*Control, *Scope) error {
				return errBroken
			},
		},
	})
	require.NoError(t, err)

	path := Root("a")

	_, err = Resolve(tree, &path)
	require.ErrorIs(t, err, ErrEffect)
	require.ErrorIs(t, err, errBroken)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	c := &Control{
		ID:        "c",
		Type:      TypeSingleSelect,
		Available: options("a", "b"),
		Active:    String("b"),
	}

	Select(c)
	require.Equal(t, String("b"), c.Active)

	c.Active = String("z")
	Select(c)
	require.Equal(t, String("a"), c.Active)

	c.Available = nil
	Select(c)
	require.Nil(t, c.Active)

	m := &Control{
		ID:        "m",
		Type:      TypeMultiSelect,
		Available: options("a", "b"),
		Active:    Strings{"a", "z", "b"},
	}

	Select(m)
	require.Equal(t, Strings{"a", "b"}, m.Active)
}
