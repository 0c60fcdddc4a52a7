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

package submit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/console/pkg/submit"

	corev1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

const namespace = "default"

var errQuota = errors.New("quota exceeded")

func configMap(name string) *unstructured.Unstructured {
	o := &unstructured.Unstructured{}
	o.SetAPIVersion("v1")
	o.SetKind("ConfigMap")
	o.SetNamespace(namespace)
	o.SetName(name)

	_ = unstructured.SetNestedStringMap(o.Object, map[string]string{"key": "value"}, "data")

	return o
}

// newClient returns a client that rejects creation of the "second"
// config map.
func newClient(t *testing.T, objects ...client.Object) client.Client {
	t.Helper()

	return fake.NewClientBuilder().WithObjects(objects...).WithInterceptorFuncs(interceptor.Funcs{
		Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			if obj.GetName() == "second" {
				return errQuota
			}

			return c.Create(ctx, obj, opts...)
		},
	}).Build()
}

func TestCreateAllSettles(t *testing.T) {
	t.Parallel()

	c := newClient(t)
	s := submit.New(c, &submit.Options{Concurrency: 2})

	results := s.CreateAll(context.Background(), []*unstructured.Unstructured{
		configMap("first"),
		configMap("second"),
		configMap("third"),
	})

	require.Len(t, results, 3)
	require.Len(t, results.Errors(), 1)
	require.ErrorIs(t, results[1].Err, errQuota)
	require.Error(t, results.Err())
	require.Len(t, results.Succeeded(), 2)

	// Nothing is rolled back.
	for _, name := range []string{"first", "third"} {
		var cm corev1.ConfigMap

		require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: namespace, Name: name}, &cm))
		require.Equal(t, "value", cm.Data["key"])
	}
}

func TestCreateAllSucceeds(t *testing.T) {
	t.Parallel()

	results := submit.New(newClient(t), nil).CreateAll(context.Background(), []*unstructured.Unstructured{
		configMap("first"),
	})

	require.Empty(t, results.Errors())
	require.NoError(t, results.Err())
	require.Equal(t, "first", results.Succeeded()[0].GetName())
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	existing := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      "first",
		},
	}

	documents := []*unstructured.Unstructured{
		configMap("first"),
		configMap("missing"),
	}

	results := submit.New(newClient(t, existing.DeepCopy()), nil).DeleteAll(context.Background(), documents, true)
	require.Empty(t, results.Errors())

	results = submit.New(newClient(t, existing.DeepCopy()), nil).DeleteAll(context.Background(), documents, false)

	errs := results.Errors()
	require.Len(t, errs, 1)
	require.True(t, kerrors.IsNotFound(errs[0]))
}

func TestPatch(t *testing.T) {
	t.Parallel()

	existing := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      "first",
		},
		Data: map[string]string{
			"key": "value",
		},
	}

	c := newClient(t, existing)

	result := submit.New(c, nil).Patch(context.Background(), configMap("first"), []submit.PatchOperation{
		{Op: "replace", Path: "/data/key", Value: "patched"},
		{Op: "add", Path: "/data/extra", Value: "added"},
	})
	require.NoError(t, result.Err)

	var cm corev1.ConfigMap

	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: namespace, Name: "first"}, &cm))
	require.Equal(t, map[string]string{"key": "patched", "extra": "added"}, cm.Data)
}
