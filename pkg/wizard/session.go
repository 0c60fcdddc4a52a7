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

package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"
	"github.com/unikorn-cloud/console/pkg/render"
	"github.com/unikorn-cloud/console/pkg/sources"
	"github.com/unikorn-cloud/console/pkg/submit"
	"github.com/unikorn-cloud/console/pkg/validation"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

var (
	// ErrInvalid is raised when submitting a wizard that fails validation.
	ErrInvalid = errors.New("wizard has validation errors")

	// ErrSubmit is raised when some or all resources failed to submit.
	ErrSubmit = errors.New("wizard submission failed")
)

// Session owns the state of one wizard, it is safe for concurrent use
// but is not shared between users.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	lock     sync.Mutex
	state    *control.State
	renderer *render.Renderer
}

// New starts a session with an initial resolution pass over the tree.
func New(tree *control.Tree, renderer *render.Renderer) (*Session, error) {
	state, err := control.NewState(tree)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:       uuid.New().String(),
		state:    state,
		renderer: renderer,
	}

	return s, nil
}

// State returns the current snapshot.
func (s *Session) State() *control.State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

// Dispatch applies events in order.  The batch is atomic, if any event
// fails the state is left as it was.
func (s *Session) Dispatch(ctx context.Context, events ...control.Event) error {
	log := log.FromContext(ctx)

	s.lock.Lock()
	defer s.lock.Unlock()

	state := s.state

	for _, event := range events {
		next, err := state.Dispatch(event)
		if err != nil {
			dispatchMetric.WithLabelValues("error").Inc()

			return err
		}

		state = next
	}

	dispatchMetric.WithLabelValues("success").Add(float64(len(events)))

	log.V(1).Info("dispatched events", "session", s.ID, "events", len(events))

	s.state = state

	return nil
}

// Fetch loads options for a control from a source.  The lock isn't held
// while the source runs, and if another fetch for the same control is
// started in the meantime this result is dropped.  Source errors are
// recorded as alerts and not returned.
func (s *Session) Fetch(ctx context.Context, id string, source sources.Source) error {
	log := log.FromContext(ctx)

	if err := s.Dispatch(ctx, control.FetchStarted{ID: id}); err != nil {
		return err
	}

	generation := s.State().Generation(id)

	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	fetchCtx, span := tracer.Start(ctx, "fetch "+id, trace.WithSpanKind(trace.SpanKindClient))

	options, err := source.Options(fetchCtx)

	span.End()

	if err != nil {
		fetchMetric.WithLabelValues("error").Inc()

		log.Error(err, "option fetch failed", "session", s.ID, "control", id)
	} else {
		fetchMetric.WithLabelValues("success").Inc()
	}

	return s.Dispatch(ctx, control.FetchCompleted{
		ID:         id,
		Generation: generation,
		Options:    options,
		Err:        err,
	})
}

// Alerts returns outstanding option fetch failures.
func (s *Session) Alerts() []control.Alert {
	return s.State().Alerts()
}

// Validate checks the current state.
func (s *Session) Validate(ctx context.Context) validation.Errors {
	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	_, span := tracer.Start(ctx, "validate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	errs := validation.Validate(s.State().View())

	if !errs.CanSubmit() {
		validationMetric.Inc()
	}

	return errs
}

// Render produces documents from the current state.
func (s *Session) Render(ctx context.Context) ([]*unstructured.Unstructured, error) {
	timer := prometheus.NewTimer(renderMetric)
	defer timer.ObserveDuration()

	return s.renderer.Render(ctx, s.State().View())
}

// Submit validates, renders and creates all documents.  Resources are
// created concurrently and failures don't roll back successes, the
// results report the outcome of each.
func (s *Session) Submit(ctx context.Context, client *submit.Client) (submit.Results, validation.Errors, error) {
	log := log.FromContext(ctx)

	// Validation and rendering must see the same snapshot.
	state := s.State()

	errs := validation.Validate(state.View())
	if !errs.CanSubmit() {
		validationMetric.Inc()
		submitMetric.WithLabelValues("invalid").Inc()

		return nil, errs, ErrInvalid
	}

	documents, err := s.renderer.Render(ctx, state.View())
	if err != nil {
		submitMetric.WithLabelValues("error").Inc()

		return nil, nil, err
	}

	results := client.CreateAll(ctx, documents)

	failures := len(results.Errors())

	switch {
	case failures == 0:
		submitMetric.WithLabelValues("success").Inc()
	case failures == len(results):
		submitMetric.WithLabelValues("failed").Inc()
	default:
		submitMetric.WithLabelValues("partial").Inc()
	}

	if failures > 0 {
		return results, nil, fmt.Errorf("%w: %w", ErrSubmit, results.Err())
	}

	log.Info("wizard submitted", "session", s.ID, "documents", len(documents))

	return results, nil, nil
}
