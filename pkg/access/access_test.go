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

package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/console/pkg/access"

	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

var (
	errUnavailable = errors.New("authorization service unavailable")

	clusterPools = schema.GroupVersionResource{Group: "hive.openshift.io", Version: "v1", Resource: "clusterpools"}
	secrets      = schema.GroupVersionResource{Version: "v1", Resource: "secrets"}
)

// newClient returns a client whose access reviews allow anything but
// deletes, and fail outright in the "broken" namespace.
func newClient(t *testing.T) client.Client {
	t.Helper()

	return fake.NewClientBuilder().WithInterceptorFuncs(interceptor.Funcs{
		Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			review, ok := obj.(*authorizationv1.SelfSubjectAccessReview)
			if !ok {
				return c.Create(ctx, obj, opts...)
			}

			if review.Spec.ResourceAttributes.Namespace == "broken" {
				return errUnavailable
			}

			review.Status.Allowed = review.Spec.ResourceAttributes.Verb != "delete"

			return nil
		},
	}).Build()
}

func TestCheck(t *testing.T) {
	t.Parallel()

	checker := access.New(newClient(t))
	ctx := context.Background()

	require.True(t, checker.Check(ctx, access.Resource("create", clusterPools, "default"), access.Resource("create", secrets, "default")))
	require.False(t, checker.Check(ctx, access.Resource("create", clusterPools, "default"), access.Resource("delete", secrets, "default")))
}

func TestCheckFailsClosed(t *testing.T) {
	t.Parallel()

	checker := access.New(newClient(t))
	ctx := context.Background()

	require.False(t, checker.Check(ctx, access.Resource("create", clusterPools, "broken")))
	require.False(t, checker.Check(ctx))
}

func TestGate(t *testing.T) {
	t.Parallel()

	checker := access.New(newClient(t))

	result := checker.Gate(context.Background(),
		access.Action{Name: "create", Attributes: []authorizationv1.ResourceAttributes{access.Resource("create", clusterPools, "default")}},
		access.Action{Name: "destroy", Attributes: []authorizationv1.ResourceAttributes{access.Resource("delete", clusterPools, "default")}},
		access.Action{Name: "empty"},
	)

	require.Equal(t, map[string]bool{"create": true, "destroy": false, "empty": false}, result)
}
