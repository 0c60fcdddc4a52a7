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

package handler

import (
	"context"
	goerrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unikorn-cloud/console/pkg/access"
	"github.com/unikorn-cloud/console/pkg/catalog"
	"github.com/unikorn-cloud/console/pkg/submit"
	"github.com/unikorn-cloud/console/pkg/wizard"
	"github.com/unikorn-cloud/core/pkg/server/errors"
	"github.com/unikorn-cloud/core/pkg/server/util"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ClientGetter returns a client that acts as the end user, access reviews
// and option lists are evaluated with it.
type ClientGetter func(r *http.Request) (client.Client, error)

type Handler struct {
	// options allows behaviour to be defined on the CLI.
	options *Options

	// submitOptions control resource creation.
	submitOptions *submit.Options

	// userClient acts as the caller.
	userClient ClientGetter
}

func New(options *Options, submitOptions *submit.Options, userClient ClientGetter) *Handler {
	return &Handler{
		options:       options,
		submitOptions: submitOptions,
		userClient:    userClient,
	}
}

// Routes attaches the API to a router.
func (h *Handler) Routes(router chi.Router) {
	router.Get("/api/v1/wizards", h.ListWizards)
	router.Route("/api/v1/wizards/{kind}", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/render", h.Render)
		r.Post("/submit", h.Submit)
		r.Post("/options/{id}", h.Options)
	})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	errors.HandleError(w, r, errors.HTTPNotFound())
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errors.HandleError(w, r, errors.OAuth2InvalidRequest("method not allowed"))
}

func (h *Handler) setUncacheable(w http.ResponseWriter) {
	w.Header().Add("Cache-Control", "no-cache")
}

func (h *Handler) input(request *wizard.Request) catalog.Input {
	infrastructure := request.Infrastructure
	if infrastructure == "" {
		infrastructure = h.options.DefaultInfrastructure
	}

	return catalog.Input{
		Infrastructure: infrastructure,
		Flags:          request.Flags,
	}
}

// session builds the requested wizard and replays the answers.
func (h *Handler) session(r *http.Request) (*catalog.Wizard, *wizard.Session, error) {
	builder, err := catalog.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		return nil, nil, errors.HTTPNotFound().WithError(err)
	}

	request := &wizard.Request{}

	if err := util.ReadJSONBody(r, request); err != nil {
		return nil, nil, err
	}

	wiz, err := builder(h.input(request))
	if err != nil {
		if goerrors.Is(err, catalog.ErrUnknownInfrastructure) {
			return nil, nil, errors.OAuth2InvalidRequest("unsupported infrastructure").WithError(err)
		}

		return nil, nil, errors.OAuth2ServerError("unable to build wizard").WithError(err)
	}

	session, err := wizard.New(wiz.Tree, wiz.Renderer)
	if err != nil {
		return nil, nil, errors.OAuth2ServerError("unable to start wizard").WithError(err)
	}

	if err := session.Apply(r.Context(), request.Answers); err != nil {
		return nil, nil, errors.OAuth2InvalidRequest("answers could not be applied").WithError(err)
	}

	return wiz, session, nil
}

func (h *Handler) client(r *http.Request) (client.Client, error) {
	c, err := h.userClient(r)
	if err != nil {
		return nil, errors.OAuth2AccessDenied("unable to act as the caller").WithError(err)
	}

	return c, nil
}

func (h *Handler) ListWizards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.client(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	kinds := catalog.Kinds()

	wizards := make([]Wizard, 0, len(kinds))
	actions := make([]access.Action, 0, len(kinds))

	for _, kind := range kinds {
		builder, err := catalog.Lookup(kind)
		if err != nil {
			errors.HandleError(w, r, errors.OAuth2ServerError("wizard registry inconsistent").WithError(err))
			return
		}

		wiz, err := builder(catalog.Input{Infrastructure: h.options.DefaultInfrastructure})
		if err != nil {
			errors.HandleError(w, r, errors.OAuth2ServerError("unable to build wizard").WithError(err))
			return
		}

		steps := wiz.Tree.Steps()

		summary := Wizard{
			Kind:  kind,
			Steps: make([]Step, len(steps)),
		}

		for i, step := range steps {
			summary.Steps[i] = Step{
				ID:   step.ID,
				Name: step.Name,
			}
		}

		wizards = append(wizards, summary)
		actions = append(actions, access.Action{
			Name:       kind,
			Attributes: wiz.Permissions(wiz.Tree),
		})
	}

	allowed := access.New(c).Gate(ctx, actions...)

	for i := range wizards {
		wizards[i].Allowed = allowed[wizards[i].Kind]
	}

	util.WriteJSONResponse(w, r, http.StatusOK, wizards)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	_, session, err := h.session(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	errs := session.Validate(r.Context())

	result := &ValidateResponse{
		Session:  session.ID,
		Valid:    errs.CanSubmit(),
		Errors:   convertErrors(errs),
		Controls: convertControls(session.State().View()),
	}

	h.setUncacheable(w)
	util.WriteJSONResponse(w, r, http.StatusOK, result)
}

func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	_, session, err := h.session(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	documents, err := session.Render(r.Context())
	if err != nil {
		errors.HandleError(w, r, errors.OAuth2ServerError("unable to render resources").WithError(err))
		return
	}

	result := &RenderResponse{
		Documents: make([]map[string]any, len(documents)),
	}

	for i := range documents {
		result.Documents[i] = documents[i].Object
	}

	h.setUncacheable(w)
	util.WriteJSONResponse(w, r, http.StatusOK, result)
}

// Options loads the options for a single control as the caller.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	wiz, session, err := h.session(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	c, err := h.client(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")

	source, ok := wiz.Sources(c, session.State().View())[id]
	if !ok {
		errors.HandleError(w, r, errors.HTTPNotFound())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.options.FetchTimeout)
	defer cancel()

	if err := session.Fetch(ctx, id, source); err != nil {
		errors.HandleError(w, r, errors.OAuth2ServerError("unable to load options").WithError(err))
		return
	}

	target, _ := session.State().View().Lookup(id)

	result := &OptionsResponse{
		ID:      id,
		Options: convertOptions(target.Available),
		Alerts:  convertAlerts(session.Alerts()),
	}

	h.setUncacheable(w)
	util.WriteJSONResponse(w, r, http.StatusOK, result)
}

// Submit creates the rendered resources as the caller, provided access
// reviews allow everything the wizard creates.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	log := log.FromContext(ctx)

	wiz, session, err := h.session(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	c, err := h.client(r)
	if err != nil {
		errors.HandleError(w, r, err)
		return
	}

	permissions := wiz.Permissions(session.State().View())

	if !access.New(c).Check(ctx, permissions...) {
		resources := make([]string, len(permissions))

		for i := range permissions {
			resources[i] = permissions[i].Resource
		}

		errors.HandleError(w, r, errors.HTTPForbidden("insufficient permissions to create "+strings.Join(resources, ", ")))

		return
	}

	results, errs, err := session.Submit(ctx, submit.New(c, h.submitOptions))
	if err != nil {
		switch {
		case goerrors.Is(err, wizard.ErrInvalid):
			result := &ValidateResponse{
				Session:  session.ID,
				Errors:   convertErrors(errs),
				Controls: convertControls(session.State().View()),
			}

			util.WriteJSONResponse(w, r, http.StatusUnprocessableEntity, result)
		case goerrors.Is(err, wizard.ErrSubmit):
			log.Info("wizard partially submitted", "kind", wiz.Kind, "failures", len(results.Errors()))

			util.WriteJSONResponse(w, r, http.StatusMultiStatus, &SubmitResponse{Resources: convertResults(results)})
		default:
			errors.HandleError(w, r, errors.OAuth2ServerError("unable to submit").WithError(err))
		}

		return
	}

	h.setUncacheable(w)
	util.WriteJSONResponse(w, r, http.StatusCreated, &SubmitResponse{Resources: convertResults(results)})
}
