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

package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/unikorn-cloud/console/pkg/constants"

	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	utiljson "k8s.io/apimachinery/pkg/util/json"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrPatch is raised when patch operations cannot be encoded.
	ErrPatch = errors.New("invalid patch")
)

// Options control submission.
type Options struct {
	// Concurrency bounds in flight requests, zero or less is unbounded.
	Concurrency int
	// FieldManager is recorded against created and patched fields.
	FieldManager string
}

// AddFlags registers submission flags.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.IntVar(&o.Concurrency, "submit-concurrency", 8, "Maximum concurrent resource requests per submission.")
	f.StringVar(&o.FieldManager, "submit-field-manager", constants.Application, "Field manager name recorded on submitted resources.")
}

// PatchOperation is a single JSON patch operation.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Result is the outcome for a single document.
type Result struct {
	// Object is the document as returned by the server on success.
	Object *unstructured.Unstructured
	// Err is any error for this document.
	Err error
}

// Results are in the same order as the submitted documents.
type Results []Result

// Errors returns every failure.
func (r Results) Errors() []error {
	var errs []error

	for i := range r {
		if r[i].Err != nil {
			errs = append(errs, r[i].Err)
		}
	}

	return errs
}

// Succeeded returns the documents that were accepted.
func (r Results) Succeeded() []*unstructured.Unstructured {
	var out []*unstructured.Unstructured

	for i := range r {
		if r[i].Err == nil {
			out = append(out, r[i].Object)
		}
	}

	return out
}

// Err aggregates failures into a single error, or nil.
func (r Results) Err() error {
	return utilerrors.NewAggregate(r.Errors())
}

// Client submits rendered documents.
type Client struct {
	client  client.Client
	options *Options
}

// New returns a submission client.
func New(client client.Client, options *Options) *Client {
	if options == nil {
		options = &Options{}
	}

	return &Client{
		client:  client,
		options: options,
	}
}

func describe(o *unstructured.Unstructured) string {
	if o.GetNamespace() == "" {
		return o.GetKind() + "/" + o.GetName()
	}

	return o.GetKind() + "/" + o.GetNamespace() + "/" + o.GetName()
}

// settle runs the callback for every document and waits for all of them,
// one failure does not cancel the others.
func (c *Client) settle(ctx context.Context, operation string, documents []*unstructured.Unstructured, callback func(context.Context, *unstructured.Unstructured) error) Results {
	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	ctx, span := tracer.Start(ctx, operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	log := log.FromContext(ctx)

	results := make(Results, len(documents))

	group := &errgroup.Group{}

	if c.options.Concurrency > 0 {
		group.SetLimit(c.options.Concurrency)
	} else {
		group.SetLimit(-1)
	}

	for i := range documents {
		object := documents[i].DeepCopy()

		group.Go(func() error {
			err := callback(ctx, object)
			if err != nil {
				err = fmt.Errorf("%s %s: %w", operation, describe(object), err)
			}

			results[i] = Result{
				Object: object,
				Err:    err,
			}

			return nil
		})
	}

	_ = group.Wait()

	errs := results.Errors()

	span.SetAttributes(attribute.Int("documents", len(documents)), attribute.Int("failures", len(errs)))

	for _, err := range errs {
		log.Error(err, "resource request failed")
	}

	log.Info("resource requests settled", "operation", operation, "documents", len(documents), "failures", len(errs))

	return results
}

// CreateAll creates every document concurrently.  Documents that were
// created are not rolled back when others fail.
func (c *Client) CreateAll(ctx context.Context, documents []*unstructured.Unstructured) Results {
	return c.settle(ctx, "create", documents, func(ctx context.Context, object *unstructured.Unstructured) error {
		return c.client.Create(ctx, object, client.FieldOwner(c.options.FieldManager))
	})
}

// DeleteAll deletes every document concurrently.  When ignoreNotFound is
// set, documents that don't exist are treated as deleted.
func (c *Client) DeleteAll(ctx context.Context, documents []*unstructured.Unstructured, ignoreNotFound bool) Results {
	return c.settle(ctx, "delete", documents, func(ctx context.Context, object *unstructured.Unstructured) error {
		if err := c.client.Delete(ctx, object); err != nil {
			if ignoreNotFound && kerrors.IsNotFound(err) {
				return nil
			}

			return err
		}

		return nil
	})
}

// Patch applies JSON patch operations to the document's resource.
func (c *Client) Patch(ctx context.Context, document *unstructured.Unstructured, operations []PatchOperation) Result {
	data, err := utiljson.Marshal(operations)
	if err != nil {
		return Result{Object: document, Err: fmt.Errorf("%w: %w", ErrPatch, err)}
	}

	results := c.settle(ctx, "patch", []*unstructured.Unstructured{document}, func(ctx context.Context, object *unstructured.Unstructured) error {
		return c.client.Patch(ctx, object, client.RawPatch(types.JSONPatchType, data), client.FieldOwner(c.options.FieldManager))
	})

	return results[0]
}
