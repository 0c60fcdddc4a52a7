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

package sources

import (
	"context"
	"slices"
	"strings"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/selection"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// MetadataProvider is the option metadata key for a credential's
	// infrastructure provider.
	MetadataProvider = "provider"

	// MetadataNamespace is the option metadata key for an item's namespace.
	MetadataNamespace = "namespace"
)

// Source loads the options for a selectable control.
type Source interface {
	Options(ctx context.Context) ([]control.Option, error)
}

// Func adapts a function to a Source.
type Func func(ctx context.Context) ([]control.Option, error)

func (f Func) Options(ctx context.Context) ([]control.Option, error) {
	return f(ctx)
}

// Static is a fixed list of options.
type Static []control.Option

func (s Static) Options(_ context.Context) ([]control.Option, error) {
	out := make([]control.Option, len(s))

	for i := range s {
		out[i] = s[i].DeepCopy()
	}

	return out, nil
}

func byValue(a, b control.Option) int {
	return strings.Compare(a.Value, b.Value)
}

// selector builds an equality selector from a label map.
func selector(match map[string]string) (labels.Selector, error) {
	keys := make([]string, 0, len(match))

	for key := range match {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	selector := labels.NewSelector()

	for _, key := range keys {
		requirement, err := labels.NewRequirement(key, selection.Equals, []string{match[key]})
		if err != nil {
			return nil, err
		}

		selector = selector.Add(*requirement)
	}

	return selector, nil
}

// Namespaces lists active namespaces with matching labels.
type Namespaces struct {
	client client.Client
	labels map[string]string
}

var _ Source = &Namespaces{}

// NewNamespaces returns a namespace source.
func NewNamespaces(client client.Client, labels map[string]string) *Namespaces {
	return &Namespaces{
		client: client,
		labels: labels,
	}
}

func (s *Namespaces) Options(ctx context.Context) ([]control.Option, error) {
	selector, err := selector(s.labels)
	if err != nil {
		return nil, err
	}

	options := &client.ListOptions{
		LabelSelector: selector,
	}

	var namespaces corev1.NamespaceList

	if err := s.client.List(ctx, &namespaces, options); err != nil {
		return nil, err
	}

	out := make([]control.Option, 0, len(namespaces.Items))

	for i := range namespaces.Items {
		namespace := &namespaces.Items[i]

		if namespace.Status.Phase == corev1.NamespaceTerminating || namespace.DeletionTimestamp != nil {
			continue
		}

		out = append(out, control.Option{
			Value: namespace.Name,
			Label: namespace.Name,
		})
	}

	slices.SortFunc(out, byValue)

	return out, nil
}

// Secrets lists credential secrets, optionally for a single provider.
// Each option carries its provider and namespace as metadata.
type Secrets struct {
	client    client.Client
	namespace string
	provider  string
}

var _ Source = &Secrets{}

// NewSecrets returns a credential source.  An empty namespace lists all
// namespaces, an empty provider matches all providers.
func NewSecrets(client client.Client, namespace, provider string) *Secrets {
	return &Secrets{
		client:    client,
		namespace: namespace,
		provider:  provider,
	}
}

func (s *Secrets) Options(ctx context.Context) ([]control.Option, error) {
	credentialRequirement, err := labels.NewRequirement(constants.CredentialLabel, selection.Exists, nil)
	if err != nil {
		return nil, err
	}

	selector := labels.NewSelector()
	selector = selector.Add(*credentialRequirement)

	if s.provider != "" {
		providerRequirement, err := labels.NewRequirement(constants.ProviderLabel, selection.Equals, []string{s.provider})
		if err != nil {
			return nil, err
		}

		selector = selector.Add(*providerRequirement)
	}

	options := &client.ListOptions{
		Namespace:     s.namespace,
		LabelSelector: selector,
	}

	var secrets corev1.SecretList

	if err := s.client.List(ctx, &secrets, options); err != nil {
		return nil, err
	}

	out := make([]control.Option, len(secrets.Items))

	for i := range secrets.Items {
		secret := &secrets.Items[i]

		out[i] = control.Option{
			Value: secret.Name,
			Label: secret.Name,
			Metadata: map[string]string{
				MetadataProvider:  secret.Labels[constants.ProviderLabel],
				MetadataNamespace: secret.Namespace,
			},
		}
	}

	slices.SortFunc(out, byValue)

	return out, nil
}

// List lists arbitrary resources by kind, e.g. cluster sets or bare metal
// assets, using their names as options.
type List struct {
	client    client.Client
	gvk       schema.GroupVersionKind
	namespace string
	labels    map[string]string
}

var _ Source = &List{}

// NewList returns a generic resource source.  The kind is the item kind,
// not the list kind.
func NewList(client client.Client, gvk schema.GroupVersionKind, namespace string, labels map[string]string) *List {
	return &List{
		client:    client,
		gvk:       gvk,
		namespace: namespace,
		labels:    labels,
	}
}

func (s *List) Options(ctx context.Context) ([]control.Option, error) {
	selector, err := selector(s.labels)
	if err != nil {
		return nil, err
	}

	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(s.gvk.GroupVersion().WithKind(s.gvk.Kind + "List"))

	options := &client.ListOptions{
		Namespace:     s.namespace,
		LabelSelector: selector,
	}

	if err := s.client.List(ctx, list, options); err != nil {
		return nil, err
	}

	out := make([]control.Option, len(list.Items))

	for i := range list.Items {
		item := &list.Items[i]

		out[i] = control.Option{
			Value: item.GetName(),
			Label: item.GetName(),
			Metadata: map[string]string{
				MetadataNamespace: item.GetNamespace(),
			},
		}
	}

	slices.SortFunc(out, byValue)

	return out, nil
}
