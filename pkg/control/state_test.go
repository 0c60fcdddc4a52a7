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

func fixtureState(t *testing.T, counter *int) *State {
	t.Helper()

	state, err := NewState(fixtureTree(t, counter))
	require.NoError(t, err)

	return state
}

func TestDispatchIsImmutable(t *testing.T) {
	t.Parallel()

	var counter int

	initial := fixtureState(t, &counter)

	next, err := initial.Dispatch(SetValue{Path: Root("provider"), Value: String("gcp")})
	require.NoError(t, err)
	require.NotSame(t, initial, next)

	require.Equal(t, String("us-east-1a"), initial.View().Get("zone").Active)
	require.Equal(t, String("europe-west1a"), next.View().Get("zone").Active)

	// Copies handed out don't leak back into the state.
	tree := next.Tree()
	tree.Get("zone").Active = String("mutated")
	require.Equal(t, String("europe-west1a"), next.View().Get("zone").Active)
}

func TestDispatchSetValueErrors(t *testing.T) {
	t.Parallel()

	var counter int

	initial := fixtureState(t, &counter)

	next, err := initial.Dispatch(SetValue{Path: Root("advanced"), Value: String("yes")})
	require.ErrorIs(t, err, ErrValueKind)
	require.Same(t, initial, next)

	_, err = initial.Dispatch(SetValue{Path: Root("missing"), Value: String("yes")})
	require.ErrorIs(t, err, ErrPath)
}

func TestDispatchClearValue(t *testing.T) {
	t.Parallel()

	var counter int

	state, err := fixtureState(t, &counter).Dispatch(SetValue{Path: Root("zone")})
	require.NoError(t, err)
	require.Nil(t, state.View().Get("zone").Active)
}

func TestDispatchInstances(t *testing.T) {
	t.Parallel()

	var counter int

	state := fixtureState(t, &counter)

	_, err := state.Dispatch(RemoveInstance{Group: "pools", Index: 0})
	require.ErrorIs(t, err, ErrInstanceBounds)

	state, err = state.Dispatch(AddInstance{Group: "pools"})
	require.NoError(t, err)
	require.Len(t, state.View().Get("pools").Instances, 2)

	state, err = state.Dispatch(SetValue{Path: InGroup("pools", 1, "size"), Value: String("small")})
	require.NoError(t, err)
	require.Equal(t, String("2"), state.View().Value(InGroup("pools", 1, "cpus")))

	state, err = state.Dispatch(RemoveInstance{Group: "pools", Index: 0})
	require.NoError(t, err)
	require.Len(t, state.View().Get("pools").Instances, 1)
	require.Equal(t, String("2"), state.View().Value(InGroup("pools", 0, "cpus")))

	_, err = state.Dispatch(AddInstance{Group: "zone"})
	require.ErrorIs(t, err, ErrNotGroup)
}

func TestDispatchStaleFetchDropped(t *testing.T) {
	t.Parallel()

	var counter int

	state := fixtureState(t, &counter)

	state, err := state.Dispatch(FetchStarted{ID: "region"})
	require.NoError(t, err)

	stale := state.Generation("region")

	state, err = state.Dispatch(FetchStarted{ID: "region"})
	require.NoError(t, err)

	current := state.Generation("region")
	require.Greater(t, current, stale)

	next, err := state.Dispatch(FetchCompleted{ID: "region", Generation: stale, Options: options("ap-south-1")})
	require.NoError(t, err)
	require.Same(t, state, next)

	next, err = state.Dispatch(FetchCompleted{ID: "region", Generation: current, Options: options("us-east-1", "ap-south-1")})
	require.NoError(t, err)
	require.Equal(t, options("us-east-1", "ap-south-1"), next.View().Get("region").Available)
	require.Equal(t, String("us-east-1"), next.View().Get("region").Active)
}

func TestDispatchFetchDropsUnavailableSelection(t *testing.T) {
	t.Parallel()

	var counter int

	state := fixtureState(t, &counter)

	state, err := state.Dispatch(FetchStarted{ID: "region"})
	require.NoError(t, err)

	state, err = state.Dispatch(FetchCompleted{ID: "region", Generation: state.Generation("region"), Options: options("ap-south-1")})
	require.NoError(t, err)

	require.Nil(t, state.View().Get("region").Active)
	// The change propagates through the region effect.
	require.Equal(t, String("a"), state.View().Get("zone").Active)
}

func TestDispatchFetchError(t *testing.T) {
	t.Parallel()

	var counter int

	errUnavailable := errors.New("service unavailable")

	state := fixtureState(t, &counter)

	state, err := state.Dispatch(FetchStarted{ID: "region"})
	require.NoError(t, err)

	state, err = state.Dispatch(FetchCompleted{ID: "region", Generation: state.Generation("region"), Err: errUnavailable})
	require.NoError(t, err)

	alerts := state.Alerts()
	require.Len(t, alerts, 1)
	require.Equal(t, "region", alerts[0].ID)
	require.ErrorIs(t, alerts[0].Err, errUnavailable)

	// Options are retained and a retry clears the alert.
	require.Equal(t, options(regions["aws"]...), state.View().Get("region").Available)

	state, err = state.Dispatch(FetchStarted{ID: "region"})
	require.NoError(t, err)
	require.Empty(t, state.Alerts())
}

func TestDispatchLoad(t *testing.T) {
	t.Parallel()

	var counter int

	state := fixtureState(t, &counter)

	state, err := state.Dispatch(Load{
		Instances: map[string]int{
			"pools": 3,
		},
		Assignments: []Assignment{
			{Path: Root("provider"), Value: String("gcp")},
			{Path: Root("region"), Value: String("us-central1")},
			{Path: InGroup("pools", 2, "size"), Value: String("large")},
		},
	})
	require.NoError(t, err)

	tree := state.View()

	require.Equal(t, String("us-central1"), tree.Get("region").Active)
	require.Equal(t, String("us-central1a"), tree.Get("zone").Active)
	require.Len(t, tree.Get("pools").Instances, 3)
	require.Equal(t, String("8"), tree.Value(InGroup("pools", 2, "cpus")))
	require.Nil(t, tree.Value(InGroup("pools", 0, "cpus")))
}
