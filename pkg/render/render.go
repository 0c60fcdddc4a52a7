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

package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailgun/raymond/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unikorn-cloud/console/pkg/constants"
	"github.com/unikorn-cloud/console/pkg/control"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"
)

var (
	// ErrTemplate is raised when a template fails to parse or execute.
	ErrTemplate = errors.New("template error")

	// ErrDecode is raised when rendered output isn't valid YAML.
	ErrDecode = errors.New("document decode error")
)

// Template is a compiled logic-less template.
type Template struct {
	name     string
	template *raymond.Template
}

// NewTemplate compiles a Handlebars template with the standard helpers.
func NewTemplate(name, source string) (*Template, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplate, name, err)
	}

	tpl.RegisterHelpers(helpers())

	t := &Template{
		name:     name,
		template: tpl,
	}

	return t, nil
}

// MustTemplate is like NewTemplate but panics on error, it is intended
// for static templates compiled at start of day.
func MustTemplate(name, source string) *Template {
	t, err := NewTemplate(name, source)
	if err != nil {
		panic(err)
	}

	return t
}

// Name returns the template's name.
func (t *Template) Name() string {
	return t.name
}

// Exec renders the template with a context as returned by Context.
func (t *Template) Exec(data map[string]any) (string, error) {
	out, err := t.template.Exec(safe(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTemplate, t.name, err)
	}

	return out, nil
}

// Decode parses a multi-document YAML stream.  Empty documents are skipped.
func Decode(text string) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(text)))

	var out []*unstructured.Unstructured

	for {
		document, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		if len(bytes.TrimSpace(document)) == 0 {
			continue
		}

		data, err := yaml.YAMLToJSON(document)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		var object map[string]any

		if err := utiljson.Unmarshal(data, &object); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		// Comment only documents decode as null.
		if object == nil {
			continue
		}

		out = append(out, &unstructured.Unstructured{Object: object})
	}

	return out, nil
}

// Renderer turns a control tree into documents.  Every template shares
// the same context, so one wizard can produce several resources.
type Renderer struct {
	templates []*Template
}

// New returns a renderer for the templates, output is in template order.
func New(templates ...*Template) *Renderer {
	return &Renderer{
		templates: templates,
	}
}

// Render evaluates all templates.  Rendering is deterministic and doesn't
// modify the tree, missing values render as empty.
func (r *Renderer) Render(ctx context.Context, tree *control.Tree) ([]*unstructured.Unstructured, error) {
	tracer := otel.GetTracerProvider().Tracer(constants.Application)

	_, span := tracer.Start(ctx, "render", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	log := log.FromContext(ctx)

	data := Context(tree)

	var out []*unstructured.Unstructured

	for _, t := range r.templates {
		text, err := t.Exec(data)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		documents, err := Decode(text)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: template %s", err, t.name)
		}

		out = append(out, documents...)
	}

	span.SetAttributes(attribute.Int("documents", len(out)))

	log.V(1).Info("rendered documents", "templates", len(r.templates), "documents", len(out))

	return out, nil
}

// Text renders all templates and concatenates the output as a multi
// document YAML stream.
func (r *Renderer) Text(tree *control.Tree) (string, error) {
	data := Context(tree)

	var out []string

	for _, t := range r.templates {
		text, err := t.Exec(data)
		if err != nil {
			return "", err
		}

		out = append(out, strings.TrimSpace(text))
	}

	return strings.Join(out, "\n---\n") + "\n", nil
}
