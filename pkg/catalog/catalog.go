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
	"slices"

	"github.com/unikorn-cloud/console/pkg/access"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"

	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

var (
	// ErrUnknownKind is raised when a wizard doesn't exist.
	ErrUnknownKind = errors.New("unknown wizard kind")

	// ErrUnknownInfrastructure is raised when a provider isn't supported.
	ErrUnknownInfrastructure = errors.New("unknown infrastructure provider")
)

// Input parameterizes a wizard.  Trees are a pure function of the input.
type Input struct {
	// Infrastructure is the default provider, where relevant.
	Infrastructure string
	// Flags enable optional features.
	Flags map[string]bool
	// Translate maps message keys to display strings, when nil keys are
	// used verbatim.
	Translate func(key string) string
}

func (i *Input) t(key string) string {
	if i.Translate == nil {
		return key
	}

	return i.Translate(key)
}

// Wizard is a control tree and everything needed to turn it into
// resources.
type Wizard struct {
	// Kind is the registry key.
	Kind string
	// Tree is freshly built and owned by the caller.
	Tree *control.Tree
	// Renderer produces the documents.
	Renderer *render.Renderer
	// Resources are created on submission.
	Resources []schema.GroupVersionResource
	// Namespace returns where resources will be created, empty for
	// cluster scoped resources.
	Namespace func(tree *control.Tree) string
	// Sources returns option sources for controls populated from the API,
	// scoped by the answers given so far.
	Sources func(c client.Client, tree *control.Tree) map[string]sources.Source
}

// Permissions returns the access review attributes required to submit.
func (w *Wizard) Permissions(tree *control.Tree) []authorizationv1.ResourceAttributes {
	namespace := ""

	if w.Namespace != nil {
		namespace = w.Namespace(tree)
	}

	out := make([]authorizationv1.ResourceAttributes, len(w.Resources))

	for i, gvr := range w.Resources {
		out[i] = access.Resource("create", gvr, namespace)
	}

	return out
}

// Builder creates a wizard.
type Builder func(in Input) (*Wizard, error)

//nolint:gochecknoglobals
var builders = map[string]Builder{
	ClusterPoolKind: ClusterPool,
	SubmarinerKind:  Submariner,
	ClusterSetKind:  ClusterSet,
}

// Lookup returns the builder for a kind.
func Lookup(kind string) (Builder, error) {
	builder, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return builder, nil
}

// Kinds lists all wizards.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))

	for kind := range builders {
		kinds = append(kinds, kind)
	}

	slices.Sort(kinds)

	return kinds
}

// textOf returns a static control's text, or empty.
func textOf(tree *control.Tree, id string) string {
	c, ok := tree.Lookup(id)
	if !ok {
		return ""
	}

	return c.Text()
}

func options(values ...string) []control.Option {
	out := make([]control.Option, len(values))

	for i, value := range values {
		out[i] = control.Option{
			Value: value,
			Label: value,
		}
	}

	return out
}
