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
	"regexp"
	"strconv"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	ClusterPoolKind = "clusterpool"
)

var (
	// ErrRunningCount is returned when more clusters would be running
	// than exist in the pool.
	ErrRunningCount = errors.New("running count must be ≤ size")

	// ErrConnectionNamespace is returned when a credential lives outside
	// the pool's namespace, where hive can't read it.
	ErrConnectionNamespace = errors.New("connection must be in the pool namespace")

	//nolint:gochecknoglobals
	clusterPoolGVR = schema.GroupVersionResource{Group: "hive.openshift.io", Version: "v1", Resource: "clusterpools"}

	//nolint:gochecknoglobals
	secretGVR = corev1.SchemeGroupVersion.WithResource("secrets")

	//nolint:gochecknoglobals
	clusterImageSetGVK = schema.GroupVersionKind{Group: "hive.openshift.io", Version: "v1", Kind: "ClusterImageSet"}

	// dnsLabel is an RFC 1123 label.
	//nolint:gochecknoglobals
	dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]{0,61}[a-z0-9])?$`)

	// dnsName is an RFC 1123 subdomain.
	//nolint:gochecknoglobals
	dnsName = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

	//nolint:gochecknoglobals
	clusterPoolTemplate = render.MustTemplate("clusterpool", fmt.Sprintf(`apiVersion: hive.openshift.io/v1
kind: ClusterPool
metadata:
  name: {{quote name}}
  namespace: {{quote namespace}}
  annotations:
    %[1]s: {{quote singleNode}}
    %[2]s: clusterpool
    %[3]s: {{quote connection}}
  labels:
{{#each labels}}
    {{quote key}}: {{quote value}}
{{/each}}
spec:
  size: {{size}}
  runningCount: {{runningCount}}
  baseDomain: {{quote baseDomain}}
  imageSetRef:
    name: {{quote imageSet}}
  pullSecretRef:
    name: {{quote (concat name "-pull-secret")}}
  installConfigSecretTemplateRef:
    name: {{quote (concat name "-install-config")}}
  platform:
    {{platform}}:
      credentialsSecretRef:
        name: {{quote connection}}
      region: {{quote region}}
`, constants.SingleNodeAnnotation, constants.WizardKindAnnotation, constants.ConnectionAnnotation))

	//nolint:gochecknoglobals
	pullSecretTemplate = render.MustTemplate("pull-secret", `apiVersion: v1
kind: Secret
metadata:
  name: {{quote (concat name "-pull-secret")}}
  namespace: {{quote namespace}}
type: kubernetes.io/dockerconfigjson
data:
  .dockerconfigjson: {{quote pullSecret}}
`)

	//nolint:gochecknoglobals
	installConfigTemplate = render.MustTemplate("install-config", `apiVersion: v1
kind: Secret
metadata:
  name: {{quote (concat name "-install-config")}}
  namespace: {{quote namespace}}
type: Opaque
stringData:
  install-config.yaml: |
    apiVersion: v1
    metadata:
      name: {{quote name}}
    baseDomain: {{quote baseDomain}}
    controlPlane:
      name: master
      replicas: {{masterReplicas}}
    compute:
{{#each workerPools}}
    - name: {{quote name}}
      replicas: {{replicas}}
      platform:
        {{../platform}}:
          type: {{quote instanceType}}
{{/each}}
    platform:
      {{platform}}:
        region: {{quote region}}
        zones:
{{#each zones}}
        - {{quote this}}
{{/each}}
`)
)

func runningCountTester(value control.Value, s *control.Scope) error {
	running, ok := value.(control.String)
	if !ok || running == "" {
		return nil
	}

	// Syntax errors are reported by the fields themselves.
	size, err := strconv.Atoi(s.Text("size"))
	if err != nil {
		return nil //nolint:nilerr
	}

	count, err := strconv.Atoi(string(running))
	if err != nil {
		return nil //nolint:nilerr
	}

	if count > size {
		return ErrRunningCount
	}

	return nil
}

// connectionNamespaceTester rejects credentials loaded from another
// namespace.  Credentials without namespace metadata can't be checked.
func connectionNamespaceTester(value control.Value, s *control.Scope) error {
	name, ok := value.(control.String)
	if !ok || name == "" {
		return nil
	}

	option, ok := s.Owner().Option(string(name))
	if !ok {
		return nil
	}

	namespace := option.Metadata[sources.MetadataNamespace]

	if namespace != "" && namespace != s.Text("namespace") {
		return fmt.Errorf("%w: %s is in %s", ErrConnectionNamespace, name, namespace)
	}

	return nil
}

// selectConnection derives the provider from the selected credential and
// repopulates the regions for it.  Credentials without a provider label
// leave the provider as it was.
func selectConnection(c *control.Control, s *control.Scope) error {
	provider := s.Get("provider")

	if option, ok := c.Option(c.Text()); ok && option.Metadata[sources.MetadataProvider] != "" {
		provider.Active = control.String(option.Metadata[sources.MetadataProvider])
	}

	region := s.Get("region")
	region.Available = regionOptions(provider.Text())
	control.Select(region)

	return nil
}

func selectRegion(c *control.Control, s *control.Scope) error {
	zones := s.Get("zones")
	zones.Available = zoneOptions(s.Text("provider"), c.Text())
	control.Select(zones)

	return nil
}

func selectSingleNode(c *control.Control, s *control.Scope) error {
	replicas := "3"
	if c.Checked() {
		replicas = "1"
	}

	s.Get("masterReplicas").Active = control.String(replicas)

	return nil
}

func clusterPoolControls(in Input) []*control.Control {
	regions := regionOptions(in.Infrastructure)

	var (
		region control.Value
		zones  []control.Option
	)

	if len(regions) > 0 {
		region = control.String(regions[0].Value)
		zones = zoneOptions(in.Infrastructure, regions[0].Value)
	}

	return []*control.Control{
		{
			ID:   "details",
			Type: control.TypeStep,
			Name: in.t("clusterpool.details"),
			Controls: []*control.Control{
				{
					ID:   "name",
					Type: control.TypeText,
					Name: in.t("clusterpool.name"),
					Validation: &control.Validation{
						Required:     true,
						Constraint:   dnsLabel,
						Notification: in.t("validation.dnsLabel"),
					},
					Reverse: control.Reverse("ClusterPool", "metadata", "name"),
				},
				{
					ID:   "namespace",
					Type: control.TypeCombobox,
					Name: in.t("clusterpool.namespace"),
					Validation: &control.Validation{
						Required:     true,
						Constraint:   dnsLabel,
						Notification: in.t("validation.dnsLabel"),
					},
					Reverse: control.Reverse("ClusterPool", "metadata", "namespace"),
				},
				{
					ID:      "labels",
					Type:    control.TypeLabels,
					Name:    in.t("clusterpool.labels"),
					Reverse: control.Reverse("ClusterPool", "metadata", "labels"),
				},
			},
		},
		{
			ID:   "infrastructure",
			Type: control.TypeStep,
			Name: in.t("clusterpool.infrastructure"),
			Controls: []*control.Control{
				{
					ID:         "connection",
					Type:       control.TypeSingleSelect,
					Name:       in.t("clusterpool.connection"),
					Validation: &control.Validation{
						Required: true,
						Tester:   connectionNamespaceTester,
					},
					DependsOn: []string{"namespace"},
					Affects:   []string{"provider", "region"},
					OnSelect:  selectConnection,
					Reverse:   control.Reverse("ClusterPool", "spec", "platform", "*", "credentialsSecretRef", "name"),
				},
				{
					ID:        "provider",
					Type:      control.TypeHidden,
					Active:    control.String(in.Infrastructure),
					Available: providerOptions(),
				},
				{
					ID:         "region",
					Type:       control.TypeSingleSelect,
					Name:       in.t("clusterpool.region"),
					Active:     region,
					Available:  regions,
					Validation: &control.Validation{Required: true},
					DependsOn:  []string{"provider"},
					Affects:    []string{"zones"},
					OnSelect:   selectRegion,
					Reverse:    control.Reverse("ClusterPool", "spec", "platform", "*", "region"),
				},
				{
					ID:        "zones",
					Type:      control.TypeMultiSelect,
					Name:      in.t("clusterpool.zones"),
					Available: zones,
				},
				{
					ID:         "imageSet",
					Type:       control.TypeSingleSelect,
					Name:       in.t("clusterpool.imageSet"),
					Validation: &control.Validation{Required: true},
					Reverse:    control.Reverse("ClusterPool", "spec", "imageSetRef", "name"),
				},
				{
					ID:   "baseDomain",
					Type: control.TypeText,
					Name: in.t("clusterpool.baseDomain"),
					Validation: &control.Validation{
						Required:     true,
						Constraint:   dnsName,
						Notification: in.t("validation.dnsName"),
					},
					Reverse: control.Reverse("ClusterPool", "spec", "baseDomain"),
				},
			},
		},
		{
			ID:   "sizing",
			Type: control.TypeStep,
			Name: in.t("clusterpool.sizing"),
			Controls: []*control.Control{
				{
					ID:     "size",
					Type:   control.TypeNumber,
					Name:   in.t("clusterpool.size"),
					Active: control.String("1"),
					Validation: &control.Validation{
						Required: true,
						Minimum:  ptr.To[int64](0),
					},
					Reverse: control.Reverse("ClusterPool", "spec", "size"),
				},
				{
					ID:        "runningCount",
					Type:      control.TypeNumber,
					Name:      in.t("clusterpool.runningCount"),
					Active:    control.String("0"),
					DependsOn: []string{"size"},
					Validation: &control.Validation{
						Minimum: ptr.To[int64](0),
						Tester:  runningCountTester,
					},
					Reverse: control.Reverse("ClusterPool", "spec", "runningCount"),
				},
				{
					ID:       "singleNode",
					Type:     control.TypeCheckbox,
					Name:     in.t("clusterpool.singleNode"),
					Active:   control.Bool(false),
					Affects:  []string{"masterReplicas"},
					OnSelect: selectSingleNode,
					Reverse:  control.Reverse("ClusterPool", "metadata", "annotations", constants.SingleNodeAnnotation),
				},
				{
					ID:     "masterReplicas",
					Type:   control.TypeHidden,
					Active: control.String("3"),
				},
				{
					ID:           "workerPools",
					Type:         control.TypeGroup,
					Name:         in.t("clusterpool.workerPools"),
					MinInstances: 1,
					DependsOn:    []string{"singleNode"},
					Hidden: func(_ *control.Control, s *control.Scope) bool {
						return s.Checked("singleNode")
					},
					Controls: []*control.Control{
						{
							ID:     "name",
							Type:   control.TypeText,
							Name:   in.t("clusterpool.workerPool.name"),
							Active: control.String("worker"),
							Validation: &control.Validation{
								Required:     true,
								Constraint:   dnsLabel,
								Notification: in.t("validation.dnsLabel"),
							},
						},
						{
							ID:     "replicas",
							Type:   control.TypeNumber,
							Name:   in.t("clusterpool.workerPool.replicas"),
							Active: control.String("3"),
							Validation: &control.Validation{
								Required: true,
								Minimum:  ptr.To[int64](0),
							},
						},
						{
							ID:         "instanceType",
							Type:       control.TypeSingleSelect,
							Name:       in.t("clusterpool.workerPool.instanceType"),
							Validation: &control.Validation{Required: true},
							DependsOn:  []string{"provider"},
							AvailableFunc: func(_ *control.Control, s *control.Scope) []control.Option {
								return instanceTypeOptions(s.Text("provider"))
							},
						},
					},
				},
			},
		},
		{
			ID:   "secrets",
			Type: control.TypeStep,
			Name: in.t("clusterpool.secrets"),
			Controls: []*control.Control{
				{
					ID:         "pullSecret",
					Type:       control.TypeText,
					Name:       in.t("clusterpool.pullSecret"),
					Encode:     control.EncodingBase64,
					Validation: &control.Validation{Required: true},
					Reverse:    control.Reverse("Secret", "data", ".dockerconfigjson"),
				},
			},
		},
		{
			ID:   "review",
			Type: control.TypeReview,
			Name: in.t("clusterpool.review"),
		},
	}
}

// ClusterPool builds a wizard for a pool of hibernating clusters on a
// public cloud provider.
func ClusterPool(in Input) (*Wizard, error) {
	if in.Infrastructure == "" {
		in.Infrastructure = ProviderAWS
	}

	if _, ok := lookupProvider(in.Infrastructure); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInfrastructure, in.Infrastructure)
	}

	tree, err := control.Build(clusterPoolControls(in))
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		Kind:      ClusterPoolKind,
		Tree:      tree,
		Renderer:  render.New(clusterPoolTemplate, pullSecretTemplate, installConfigTemplate),
		Resources: []schema.GroupVersionResource{clusterPoolGVR, secretGVR},
		Namespace: func(tree *control.Tree) string {
			return textOf(tree, "namespace")
		},
		Sources: func(c client.Client, tree *control.Tree) map[string]sources.Source {
			return map[string]sources.Source{
				"namespace":  sources.NewNamespaces(c, nil),
				"connection": sources.NewSecrets(c, textOf(tree, "namespace"), ""),
				"imageSet":   sources.NewList(c, clusterImageSetGVK, "", nil),
			}
		},
	}

	return w, nil
}
