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
	"errors"
	"fmt"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	ClusterSetKind = "clusterset"
)

var (
	// ErrDuplicateBinding is returned when a namespace is bound twice.
	ErrDuplicateBinding = errors.New("namespace is bound more than once")

	//nolint:gochecknoglobals
	managedClusterSetGVR = schema.GroupVersionResource{Group: "cluster.open-cluster-management.io", Version: "v1beta2", Resource: "managedclustersets"}

	//nolint:gochecknoglobals
	managedClusterSetBindingGVR = schema.GroupVersionResource{Group: "cluster.open-cluster-management.io", Version: "v1beta2", Resource: "managedclustersetbindings"}

	//nolint:gochecknoglobals
	clusterSetTemplate = render.MustTemplate("managedclusterset", fmt.Sprintf(`apiVersion: cluster.open-cluster-management.io/v1beta2
kind: ManagedClusterSet
metadata:
  name: {{quote name}}
  annotations:
    %[1]s: clusterset
spec:
  clusterSelector:
    selectorType: ExclusiveClusterSetLabel
{{#arrayItemHasKey namespaceBindings "namespace"}}
{{#each namespaceBindings}}
---
apiVersion: cluster.open-cluster-management.io/v1beta2
kind: ManagedClusterSetBinding
metadata:
  name: {{quote ../name}}
  namespace: {{quote namespace}}
spec:
  clusterSet: {{quote ../name}}
{{/each}}
{{/arrayItemHasKey}}
`, constants.WizardKindAnnotation))
)

func uniqueBindings(value control.Value, _ *control.Scope) error {
	rows, _ := value.(control.Rows)

	seen := map[string]bool{}

	for _, row := range rows {
		namespace := row["namespace"]
		if namespace == "" {
			continue
		}

		if seen[namespace] {
			return fmt.Errorf("%w: %s", ErrDuplicateBinding, namespace)
		}

		seen[namespace] = true
	}

	return nil
}

func clusterSetControls(in Input) []*control.Control {
	return []*control.Control{
		{
			ID:   "details",
			Type: control.TypeStep,
			Name: in.t("clusterset.details"),
			Controls: []*control.Control{
				{
					ID:   "name",
					Type: control.TypeText,
					Name: in.t("clusterset.name"),
					Validation: &control.Validation{
						Required:     true,
						Constraint:   dnsLabel,
						Notification: in.t("validation.dnsLabel"),
					},
					Reverse: control.Reverse("ManagedClusterSet", "metadata", "name"),
				},
				{
					ID:   "namespaceBindings",
					Type: control.TypeTable,
					Name: in.t("clusterset.namespaceBindings"),
					Columns: []control.Column{
						{
							ID:   "namespace",
							Name: in.t("clusterset.namespace"),
							Validation: &control.Validation{
								Required:     true,
								Constraint:   dnsLabel,
								Notification: in.t("validation.dnsLabel"),
							},
						},
					},
					Validation: &control.Validation{
						Tester: uniqueBindings,
					},
				},
			},
		},
		{
			ID:   "review",
			Type: control.TypeReview,
			Name: in.t("clusterset.review"),
		},
	}
}

// ClusterSet builds a wizard for a cluster set and the namespaces it is
// bound to.
func ClusterSet(in Input) (*Wizard, error) {
	tree, err := control.Build(clusterSetControls(in))
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		Kind:      ClusterSetKind,
		Tree:      tree,
		Renderer:  render.New(clusterSetTemplate),
		Resources: []schema.GroupVersionResource{managedClusterSetGVR, managedClusterSetBindingGVR},
		Sources: func(_ client.Client, _ *control.Tree) map[string]sources.Source {
			return nil
		},
	}

	return w, nil
}
