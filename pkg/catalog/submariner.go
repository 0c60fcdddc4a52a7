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

package catalog

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	SubmarinerKind = "submariner"

	// loadBalancerVersion is the first add-on version that can front
	// gateways with a load balancer.
	loadBalancerVersion = "0.14.0"
)

var (
	//nolint:gochecknoglobals
	managedClusterAddOnGVR = schema.GroupVersionResource{Group: "addon.open-cluster-management.io", Version: "v1alpha1", Resource: "managedclusteraddons"}

	//nolint:gochecknoglobals
	submarinerConfigGVR = schema.GroupVersionResource{Group: "submarineraddon.open-cluster-management.io", Version: "v1alpha1", Resource: "submarinerconfigs"}

	//nolint:gochecknoglobals
	managedClusterGVK = schema.GroupVersionKind{Group: "cluster.open-cluster-management.io", Version: "v1", Kind: "ManagedCluster"}

	//nolint:gochecknoglobals
	addOnTemplate = render.MustTemplate("managedclusteraddon", fmt.Sprintf(`apiVersion: addon.open-cluster-management.io/v1alpha1
kind: ManagedClusterAddOn
metadata:
  name: submariner
  namespace: {{quote managedCluster}}
  annotations:
    %[1]s: {{quote addonVersion}}
    %[2]s: submariner
spec:
  installNamespace: submariner-operator
`, constants.AddonVersionAnnotation, constants.WizardKindAnnotation))

	//nolint:gochecknoglobals
	submarinerConfigTemplate = render.MustTemplate("submarinerconfig", `apiVersion: submarineraddon.open-cluster-management.io/v1alpha1
kind: SubmarinerConfig
metadata:
  name: submariner
  namespace: {{quote managedCluster}}
spec:
  cableDriver: {{quote cableDriver}}
{{#if ipsecNatPort}}
  IPSecNATTPort: {{ipsecNatPort}}
  IPSecIKEPort: {{ipsecIkePort}}
{{/if}}
  NATTEnable: {{natTraversal}}
  gatewayConfig:
    gateways: {{gateways}}
{{#if (versionAtLeast addonVersion "0.14.0")}}
  loadBalancerEnable: {{default loadBalancer false}}
{{/if}}
`)
)

// atLeast is true when the version is valid and not less than the minimum.
func atLeast(version, minimum string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	return !v.LessThan(semver.MustParse(minimum))
}

func submarinerControls(in Input) []*control.Control {
	ports := &control.Validation{
		Required: true,
		Minimum:  ptr.To[int64](1),
		Maximum:  ptr.To[int64](65535),
	}

	notLibreswan := func(_ *control.Control, s *control.Scope) bool {
		return s.Text("cableDriver") != "libreswan"
	}

	return []*control.Control{
		{
			ID:   "cluster",
			Type: control.TypeStep,
			Name: in.t("submariner.cluster"),
			Controls: []*control.Control{
				{
					ID:         "managedCluster",
					Type:       control.TypeSingleSelect,
					Name:       in.t("submariner.managedCluster"),
					Validation: &control.Validation{Required: true},
					Reverse:    control.Reverse("ManagedClusterAddOn", "metadata", "namespace"),
				},
				{
					ID:         "addonVersion",
					Type:       control.TypeSingleSelect,
					Name:       in.t("submariner.addonVersion"),
					Active:     control.String("0.15.0"),
					Available:  options("0.13.3", "0.14.2", "0.15.0"),
					Validation: &control.Validation{Required: true},
					Reverse:    control.Reverse("ManagedClusterAddOn", "metadata", "annotations", constants.AddonVersionAnnotation),
				},
			},
		},
		{
			ID:   "networking",
			Type: control.TypeStep,
			Name: in.t("submariner.networking"),
			Controls: []*control.Control{
				{
					ID:         "cableDriver",
					Type:       control.TypeSingleSelect,
					Name:       in.t("submariner.cableDriver"),
					Active:     control.String("libreswan"),
					Available:  options("libreswan", "wireguard", "vxlan"),
					Validation: &control.Validation{Required: true},
					Reverse:    control.Reverse("SubmarinerConfig", "spec", "cableDriver"),
				},
				{
					ID:         "ipsecNatPort",
					Type:       control.TypeNumber,
					Name:       in.t("submariner.ipsecNatPort"),
					Active:     control.String("4500"),
					DependsOn:  []string{"cableDriver"},
					Hidden:     notLibreswan,
					Validation: ports,
					Reverse:    control.Reverse("SubmarinerConfig", "spec", "IPSecNATTPort"),
				},
				{
					ID:         "ipsecIkePort",
					Type:       control.TypeNumber,
					Name:       in.t("submariner.ipsecIkePort"),
					Active:     control.String("500"),
					DependsOn:  []string{"cableDriver"},
					Hidden:     notLibreswan,
					Validation: ports,
					Reverse:    control.Reverse("SubmarinerConfig", "spec", "IPSecIKEPort"),
				},
				{
					ID:     "gateways",
					Type:   control.TypeNumber,
					Name:   in.t("submariner.gateways"),
					Active: control.String("1"),
					Validation: &control.Validation{
						Required: true,
						Minimum:  ptr.To[int64](1),
					},
					Reverse: control.Reverse("SubmarinerConfig", "spec", "gatewayConfig", "gateways"),
				},
				{
					ID:      "natTraversal",
					Type:    control.TypeCheckbox,
					Name:    in.t("submariner.natTraversal"),
					Active:  control.Bool(true),
					Reverse: control.Reverse("SubmarinerConfig", "spec", "NATTEnable"),
				},
				{
					ID:        "loadBalancer",
					Type:      control.TypeCheckbox,
					Name:      in.t("submariner.loadBalancer"),
					Active:    control.Bool(false),
					DependsOn: []string{"addonVersion"},
					Hidden: func(_ *control.Control, s *control.Scope) bool {
						return !atLeast(s.Text("addonVersion"), loadBalancerVersion)
					},
					Reverse: control.Reverse("SubmarinerConfig", "spec", "loadBalancerEnable"),
				},
			},
		},
		{
			ID:   "review",
			Type: control.TypeReview,
			Name: in.t("submariner.review"),
		},
	}
}

// Submariner builds a wizard that installs the Submariner add-on on a
// managed cluster.
func Submariner(in Input) (*Wizard, error) {
	tree, err := control.Build(submarinerControls(in))
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		Kind:      SubmarinerKind,
		Tree:      tree,
		Renderer:  render.New(addOnTemplate, submarinerConfigTemplate),
		Resources: []schema.GroupVersionResource{managedClusterAddOnGVR, submarinerConfigGVR},
		Namespace: func(tree *control.Tree) string {
			return textOf(tree, "managedCluster")
		},
		Sources: func(c client.Client, _ *control.Tree) map[string]sources.Source {
			return map[string]sources.Source{
				"managedCluster": sources.NewList(c, managedClusterGVK, "", nil),
			}
		},
	}

	return w, nil
}
