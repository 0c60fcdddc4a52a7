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

package access

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/unikorn-cloud/console/pkg/constants"

	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrDenied is raised internally when any review is denied.
	ErrDenied = errors.New("access denied")
)

// Action is a named UI action and the permissions it needs.
type Action struct {
	// Name identifies the action e.g. "create-clusterpool".
	Name string
	// Attributes must all be allowed for the action to be enabled.
	Attributes []authorizationv1.ResourceAttributes
}

// Resource returns the attributes for a verb on a resource.
func Resource(verb string, gvr schema.GroupVersionResource, namespace string) authorizationv1.ResourceAttributes {
	return authorizationv1.ResourceAttributes{
		Namespace: namespace,
		Verb:      verb,
		Group:     gvr.Group,
		Version:   gvr.Version,
		Resource:  gvr.Resource,
	}
}

// Checker gates actions on self subject access reviews.
type Checker struct {
	client client.Client
}

// New returns a checker that creates reviews with the client, which must
// carry the end user's credentials.
func New(client client.Client) *Checker {
	return &Checker{
		client: client,
	}
}

func (c *Checker) review(ctx context.Context, attributes authorizationv1.ResourceAttributes) error {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &attributes,
		},
	}

	if err := c.client.Create(ctx, review); err != nil {
		return err
	}

	if !review.Status.Allowed {
		return fmt.Errorf("%w: %s %s/%s in %q", ErrDenied, attributes.Verb, attributes.Group, attributes.Resource, attributes.Namespace)
	}

	return nil
}

// Check issues one review per attribute set concurrently and returns true
// only if all are allowed.  It fails closed, any error is logged and
// treated as a denial, as is an empty attribute list.
func (c *Checker) Check(ctx context.Context, attributes ...authorizationv1.ResourceAttributes) bool {
	if len(attributes) == 0 {
		return false
	}

	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	ctx, span := tracer.Start(ctx, "access-review", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	log := log.FromContext(ctx)

	group, gctx := errgroup.WithContext(ctx)

	for i := range attributes {
		a := attributes[i]

		group.Go(func() error {
			return c.review(gctx, a)
		})
	}

	if err := group.Wait(); err != nil {
		if !errors.Is(err, ErrDenied) {
			log.Error(err, "access review failed")
		} else {
			log.V(1).Info("access review denied", "reason", err.Error())
		}

		return false
	}

	return true
}

// Gate checks a set of actions, returning whether each is enabled.
func (c *Checker) Gate(ctx context.Context, actions ...Action) map[string]bool {
	result := make(map[string]bool, len(actions))

	for _, action := range actions {
		result[action.Name] = c.Check(ctx, action.Attributes...)
	}

	return result
}
