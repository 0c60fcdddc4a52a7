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

package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/console/pkg/catalog"
	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"
	"github.com/unikorn-cloud/console/pkg/validation"
)

func build(t *testing.T, kind string, in catalog.Input) (*catalog.Wizard, *control.State) {
	t.Helper()

	builder, err := catalog.Lookup(kind)
	require.NoError(t, err)

	w, err := builder(in)
	require.NoError(t, err)

	state, err := control.NewState(w.Tree)
	require.NoError(t, err)

	return w, state
}

func dispatch(t *testing.T, state *control.State, events ...control.Event) *control.State {
	t.Helper()

	for _, event := range events {
		var err error

		state, err = state.Dispatch(event)
		require.NoError(t, err)
	}

	return state
}

func set(id string, value control.Value) control.Event {
	return control.SetValue{Path: control.Root(id), Value: value}
}

func optionValues(options []control.Option) []string {
	out := make([]string, len(options))

	for i := range options {
		out[i] = options[i].Value
	}

	return out
}

func TestKinds(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{catalog.ClusterPoolKind, catalog.ClusterSetKind, catalog.SubmarinerKind}, catalog.Kinds())

	_, err := catalog.Lookup("unicorn")
	require.ErrorIs(t, err, catalog.ErrUnknownKind)

	for _, kind := range catalog.Kinds() {
		builder, err := catalog.Lookup(kind)
		require.NoError(t, err)

		w, err := builder(catalog.Input{})
		require.NoError(t, err)
		require.Equal(t, kind, w.Kind)
		require.NotEmpty(t, w.Tree.Steps())
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	w, _ := build(t, catalog.ClusterPoolKind, catalog.Input{
		Translate: strings.ToUpper,
	})

	require.Equal(t, "CLUSTERPOOL.NAME", w.Tree.Get("name").Name)
}

func TestClusterPoolUnknownInfrastructure(t *testing.T) {
	t.Parallel()

	_, err := catalog.ClusterPool(catalog.Input{Infrastructure: "openstack"})
	require.ErrorIs(t, err, catalog.ErrUnknownInfrastructure)
}

func TestClusterPoolDefaults(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{Infrastructure: catalog.ProviderGCP})
	tree := state.View()

	require.Equal(t, "gcp", tree.Get("provider").Text())
	require.Equal(t, "us-central1", tree.Get("region").Text())
	require.Equal(t, []string{"us-central1-a", "us-central1-b", "us-central1-c"}, optionValues(tree.Get("zones").Available))
	require.Equal(t, "3", tree.Get("masterReplicas").Text())
	require.Len(t, tree.Get("workerPools").Instances, 1)

	instanceType, _, err := tree.Find(control.InGroup("workerPools", 0, "instanceType"))
	require.NoError(t, err)
	require.Equal(t, []string{"n1-standard-4", "n1-standard-8", "n2-highmem-8"}, optionValues(instanceType.Available))
}

// Selecting a credential labelled for another provider switches the
// provider and repopulates the regions for it.
func TestClusterPoolConnectionSelectsProvider(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{Infrastructure: catalog.ProviderGCP})

	state = dispatch(t, state, control.FetchStarted{ID: "connection"})
	state = dispatch(t, state,
		control.FetchCompleted{
			ID:         "connection",
			Generation: state.Generation("connection"),
			Options: []control.Option{
				{
					Value:    "aws-credentials",
					Label:    "aws-credentials",
					Metadata: map[string]string{sources.MetadataProvider: catalog.ProviderAWS},
				},
			},
		},
		set("connection", control.String("aws-credentials")),
	)

	tree := state.View()

	require.Equal(t, "aws", tree.Get("provider").Text())
	require.Contains(t, optionValues(tree.Get("region").Available), "us-east-1")
	require.Equal(t, "us-east-1", tree.Get("region").Text())
	require.Equal(t, []string{"us-east-1a", "us-east-1b", "us-east-1c"}, optionValues(tree.Get("zones").Available))

	instanceType, _, err := tree.Find(control.InGroup("workerPools", 0, "instanceType"))
	require.NoError(t, err)
	require.Contains(t, optionValues(instanceType.Available), "m5.xlarge")
}

func TestClusterPoolRunningCount(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = dispatch(t, state, set("size", control.String("5")), set("runningCount", control.String("6")))

	errs := validation.Validate(state.View())
	require.NotNil(t, errs["runningCount"])
	require.Equal(t, validation.CodeContext, errs["runningCount"].Code)
	require.Equal(t, "running count must be ≤ size", errs["runningCount"].Message)

	state = dispatch(t, state, set("runningCount", control.String("5")))

	errs = validation.Validate(state.View())
	require.Nil(t, errs["runningCount"])
}

func TestClusterPoolSingleNode(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	require.True(t, validation.Validate(state.View()).Invalid("workerPools"))

	text, err := w.Renderer.Text(state.View())
	require.NoError(t, err)
	require.Contains(t, text, "- name: worker")

	state = dispatch(t, state, set("singleNode", control.Bool(true)))
	tree := state.View()

	require.Equal(t, "1", tree.Get("masterReplicas").Text())

	pools := tree.Get("workerPools")
	require.True(t, pools.IsHidden)

	for _, c := range pools.Instances[0] {
		require.True(t, c.IsHidden)
	}

	require.False(t, validation.Validate(tree).Invalid("workerPools"))

	text, err = w.Renderer.Text(tree)
	require.NoError(t, err)
	require.NotContains(t, text, "- name: worker")
	require.Contains(t, text, "replicas: 1")
}

func populatedClusterPool(t *testing.T, state *control.State) *control.State {
	t.Helper()

	return dispatch(t, state,
		set("name", control.String("pool")),
		set("namespace", control.String("hive")),
		set("labels", control.KeyValues{"team": "platform"}),
		set("connection", control.String("aws-credentials")),
		set("imageSet", control.String("img4.14.0")),
		set("baseDomain", control.String("example.com")),
		set("size", control.String("4")),
		set("runningCount", control.String("2")),
		set("pullSecret", control.String("{}")),
		control.SetValue{Path: control.InGroup("workerPools", 0, "instanceType"), Value: control.String("m5.xlarge")},
	)
}

func TestClusterPoolRender(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	require.True(t, validation.Validate(state.View()).CanSubmit())

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 3)

	pool := documents[0]
	require.Equal(t, "ClusterPool", pool.GetKind())
	require.Equal(t, "hive", pool.GetNamespace())
	require.Equal(t, map[string]string{"team": "platform"}, pool.GetLabels())
	require.Equal(t, "false", pool.GetAnnotations()[constants.SingleNodeAnnotation])
	require.Equal(t, "aws-credentials", pool.GetAnnotations()[constants.ConnectionAnnotation])

	spec, ok := pool.Object["spec"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 4, spec["size"])
	require.Equal(t, map[string]any{
		"aws": map[string]any{
			"credentialsSecretRef": map[string]any{"name": "aws-credentials"},
			"region":               "us-east-1",
		},
	}, spec["platform"])

	require.Equal(t, "pool-pull-secret", documents[1].GetName())
	require.Equal(t, "pool-install-config", documents[2].GetName())

	for _, attributes := range w.Permissions(state.View()) {
		require.Equal(t, "create", attributes.Verb)
		require.Equal(t, "hive", attributes.Namespace)
	}
}

func TestClusterPoolRoundTrip(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)

	_, fresh := build(t, catalog.ClusterPoolKind, catalog.Input{})

	load, err := render.Reverse(fresh.View(), documents)
	require.NoError(t, err)

	restored := dispatch(t, fresh, load,
		control.SetValue{Path: control.InGroup("workerPools", 0, "instanceType"), Value: control.String("m5.xlarge")},
	)

	for _, id := range []string{"name", "namespace", "connection", "region", "imageSet", "baseDomain", "size", "runningCount", "pullSecret"} {
		require.Equal(t, state.View().Get(id).Active, restored.View().Get(id).Active, id)
	}

	again, err := w.Renderer.Render(context.Background(), restored.View())
	require.NoError(t, err)
	require.Equal(t, documents, again)
}

func TestSubmarinerRender(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.SubmarinerKind, catalog.Input{})

	state = dispatch(t, state, set("managedCluster", control.String("spoke")))

	require.True(t, validation.Validate(state.View()).CanSubmit())
	require.Equal(t, "spoke", w.Permissions(state.View())[0].Namespace)

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 2)
	require.Equal(t, "0.15.0", documents[0].GetAnnotations()[constants.AddonVersionAnnotation])

	spec, ok := documents[1].Object["spec"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 4500, spec["IPSecNATTPort"])
	require.Equal(t, true, spec["NATTEnable"])
	require.Equal(t, false, spec["loadBalancerEnable"])
}

func TestSubmarinerVisibility(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.SubmarinerKind, catalog.Input{})

	state = dispatch(t, state,
		set("managedCluster", control.String("spoke")),
		set("cableDriver", control.String("wireguard")),
		set("addonVersion", control.String("0.13.3")),
	)

	tree := state.View()
	require.True(t, tree.Get("ipsecNatPort").IsHidden)
	require.True(t, tree.Get("ipsecIkePort").IsHidden)
	require.True(t, tree.Get("loadBalancer").IsHidden)

	// Hidden ports aren't validated.
	state = dispatch(t, state, set("ipsecNatPort", control.String("99999")))
	require.True(t, validation.Validate(state.View()).CanSubmit())

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)

	spec, ok := documents[1].Object["spec"].(map[string]any)
	require.True(t, ok)
	require.NotContains(t, spec, "IPSecNATTPort")
	require.NotContains(t, spec, "loadBalancerEnable")

	state = dispatch(t, state, set("cableDriver", control.String("libreswan")))
	require.True(t, validation.Validate(state.View()).Invalid("ipsecNatPort"))
}

func TestSubmarinerRoundTrip(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.SubmarinerKind, catalog.Input{})

	state = dispatch(t, state,
		set("managedCluster", control.String("spoke")),
		set("gateways", control.String("2")),
		set("loadBalancer", control.Bool(true)),
	)

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)

	_, fresh := build(t, catalog.SubmarinerKind, catalog.Input{})

	load, err := render.Reverse(fresh.View(), documents)
	require.NoError(t, err)

	restored := dispatch(t, fresh, load)

	for _, id := range []string{"managedCluster", "addonVersion", "cableDriver", "ipsecNatPort", "gateways", "natTraversal", "loadBalancer"} {
		require.Equal(t, state.View().Get(id).Active, restored.View().Get(id).Active, id)
	}
}

func TestClusterSet(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.ClusterSetKind, catalog.Input{})

	state = dispatch(t, state, set("name", control.String("global")))

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 1)
	require.Equal(t, "ManagedClusterSet", documents[0].GetKind())
	require.Empty(t, w.Permissions(state.View())[0].Namespace)

	state = dispatch(t, state, set("namespaceBindings", control.Rows{{"namespace": "team-a"}, {"namespace": "team-b"}}))
	require.True(t, validation.Validate(state.View()).CanSubmit())

	documents, err = w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 3)
	require.Equal(t, "ManagedClusterSetBinding", documents[1].GetKind())
	require.Equal(t, "team-a", documents[1].GetNamespace())
	require.Equal(t, "global", documents[2].GetName())
	require.Equal(t, "team-b", documents[2].GetNamespace())
}

func TestClusterSetBindingValidation(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterSetKind, catalog.Input{})

	state = dispatch(t, state,
		set("name", control.String("global")),
		set("namespaceBindings", control.Rows{{"namespace": "team-a"}, {"namespace": "team-a"}, {"namespace": "Bad_Name"}}),
	)

	errs := validation.Validate(state.View())
	require.NotNil(t, errs["namespaceBindings[2].namespace"])
	require.Equal(t, validation.CodeConstraint, errs["namespaceBindings[2].namespace"].Code)
	require.NotNil(t, errs["namespaceBindings"])
	require.Equal(t, validation.CodeContext, errs["namespaceBindings"].Code)
	require.Contains(t, errs["namespaceBindings"].Message, "team-a")
}

// Values that YAML would otherwise read as numbers or booleans keep their
// string type, and label keys survive the round trip.
func TestClusterPoolStringValues(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	state = dispatch(t, state,
		set("name", control.String("123")),
		set("namespace", control.String("true")),
		set("labels", control.KeyValues{"yes": "x", "1": "y"}),
	)
	require.True(t, validation.Validate(state.View()).CanSubmit())

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 3)

	require.Equal(t, "123", documents[0].GetName())
	require.Equal(t, "true", documents[0].GetNamespace())
	require.Equal(t, map[string]string{"yes": "x", "1": "y"}, documents[0].GetLabels())
	require.Equal(t, "123-pull-secret", documents[1].GetName())
	require.Equal(t, "123-install-config", documents[2].GetName())

	_, fresh := build(t, catalog.ClusterPoolKind, catalog.Input{})

	load, err := render.Reverse(fresh.View(), documents)
	require.NoError(t, err)

	restored := dispatch(t, fresh, load)
	require.Equal(t, control.String("123"), restored.View().Get("name").Active)
	require.Equal(t, control.KeyValues{"yes": "x", "1": "y"}, restored.View().Get("labels").Active)
}

func TestClusterPoolInvalidLabels(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"bad: key", "multi\nline", "-leading"} {
		_, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

		state = populatedClusterPool(t, state)
		state = dispatch(t, state, set("labels", control.KeyValues{key: "x"}))

		errs := validation.Validate(state.View())
		require.NotNil(t, errs["labels"], key)
		require.Equal(t, validation.CodeConstraint, errs["labels"].Code, key)
		require.Equal(t, validation.MessageLabel, errs["labels"].Message, key)
	}

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	state = dispatch(t, state, set("labels", control.KeyValues{"team": "bad value"}))
	require.True(t, validation.Validate(state.View()).Invalid("labels"))
}

func TestClusterPoolZones(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{catalog.ProviderAWS, catalog.ProviderGCP, catalog.ProviderAzure} {
		_, state := build(t, catalog.ClusterPoolKind, catalog.Input{Infrastructure: provider})

		require.NotEmpty(t, state.View().Get("zones").Available, provider)
	}
}

func TestClusterPoolUnavailableRegion(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	state = dispatch(t, state, set("region", control.String("mars-1")))

	errs := validation.Validate(state.View())
	require.NotNil(t, errs["region"])
	require.Equal(t, validation.CodeConstraint, errs["region"].Code)
	require.Equal(t, validation.MessageOption, errs["region"].Message)
}

func credentials(t *testing.T, state *control.State, namespace string) *control.State {
	t.Helper()

	state = dispatch(t, state, control.FetchStarted{ID: "connection"})

	return dispatch(t, state,
		control.FetchCompleted{
			ID:         "connection",
			Generation: state.Generation("connection"),
			Options: []control.Option{
				{
					Value: "aws-credentials",
					Label: "aws-credentials",
					Metadata: map[string]string{
						sources.MetadataProvider:  catalog.ProviderAWS,
						sources.MetadataNamespace: namespace,
					},
				},
			},
		},
		set("connection", control.String("aws-credentials")),
	)
}

func TestClusterPoolConnectionNamespace(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	state = credentials(t, state, "other")

	errs := validation.Validate(state.View())
	require.NotNil(t, errs["connection"])
	require.Equal(t, validation.CodeContext, errs["connection"].Code)
	require.Contains(t, errs["connection"].Message, "other")

	_, state = build(t, catalog.ClusterPoolKind, catalog.Input{})

	state = populatedClusterPool(t, state)
	state = credentials(t, state, "hive")
	require.True(t, validation.Validate(state.View()).CanSubmit())
}

func TestSubmarinerStringNamespace(t *testing.T) {
	t.Parallel()

	w, state := build(t, catalog.SubmarinerKind, catalog.Input{})

	state = dispatch(t, state, set("managedCluster", control.String("true")))

	documents, err := w.Renderer.Render(context.Background(), state.View())
	require.NoError(t, err)
	require.Len(t, documents, 2)
	require.Equal(t, "true", documents[0].GetNamespace())
	require.Equal(t, "true", documents[1].GetNamespace())
}

func TestSubmarinerUnavailableOptions(t *testing.T) {
	t.Parallel()

	_, state := build(t, catalog.SubmarinerKind, catalog.Input{})

	state = dispatch(t, state,
		set("managedCluster", control.String("spoke")),
		set("cableDriver", control.String("banana")),
		set("addonVersion", control.String("9.9.9")),
	)

	errs := validation.Validate(state.View())
	require.False(t, errs.CanSubmit())
	require.True(t, errs.Invalid("cableDriver"))
	require.Equal(t, validation.MessageOption, errs["cableDriver"].Message)
	require.True(t, errs.Invalid("addonVersion"))
}
