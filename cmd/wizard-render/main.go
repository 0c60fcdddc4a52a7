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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/unikorn-cloud/console/pkg/catalog"
	"github.com/unikorn-cloud/console/pkg/validation"
	"github.com/unikorn-cloud/console/pkg/wizard"

	"k8s.io/cli-runtime/pkg/printers"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"
)

var (
	// ErrFormat is raised for unsupported output formats.
	ErrFormat = errors.New("unsupported output format")

	// ErrInvalid is raised when answers don't pass validation.
	ErrInvalid = errors.New("answers are invalid")
)

// Options control offline rendering.
type Options struct {
	// Kind is the wizard to render.
	Kind string
	// Answers is a YAML or JSON file of infrastructure, flags and answers.
	Answers string
	// Output is yaml or json.
	Output string
	// AllowInvalid renders even when validation fails.
	AllowInvalid bool
}

func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.Kind, "kind", catalog.ClusterPoolKind, "Wizard to render.")
	f.StringVar(&o.Answers, "answers", "", "Answers file, standard input when empty.")
	f.StringVarP(&o.Output, "output", "o", "yaml", "Output format, yaml or json.")
	f.BoolVar(&o.AllowInvalid, "allow-invalid", false, "Render even when validation fails.")
}

func (o *Options) printer() (printers.ResourcePrinter, error) {
	switch o.Output {
	case "yaml":
		return &printers.YAMLPrinter{}, nil
	case "json":
		return &printers.JSONPrinter{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrFormat, o.Output)
}

func (o *Options) request() (*wizard.Request, error) {
	var data []byte

	var err error

	if o.Answers == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(o.Answers)
	}

	if err != nil {
		return nil, err
	}

	request := &wizard.Request{}

	if err := yaml.Unmarshal(data, request); err != nil {
		return nil, err
	}

	return request, nil
}

func run(ctx context.Context, o *Options, out, errOut io.Writer) error {
	printer, err := o.printer()
	if err != nil {
		return err
	}

	request, err := o.request()
	if err != nil {
		return err
	}

	builder, err := catalog.Lookup(o.Kind)
	if err != nil {
		return err
	}

	w, err := builder(catalog.Input{
		Infrastructure: request.Infrastructure,
		Flags:          request.Flags,
	})
	if err != nil {
		return err
	}

	session, err := wizard.New(w.Tree, w.Renderer)
	if err != nil {
		return err
	}

	if err := session.Apply(ctx, request.Answers); err != nil {
		return err
	}

	if errs := session.Validate(ctx); !errs.CanSubmit() {
		report(errOut, errs)

		if !o.AllowInvalid {
			return ErrInvalid
		}
	}

	documents, err := session.Render(ctx)
	if err != nil {
		return err
	}

	for _, document := range documents {
		if err := printer.PrintObj(document, out); err != nil {
			return err
		}
	}

	return nil
}

func report(out io.Writer, errs validation.Errors) {
	for _, err := range errs.Sorted() {
		fmt.Fprintln(out, err.Error())
	}
}

func main() {
	o := &Options{}
	o.AddFlags(pflag.CommandLine)

	zapOptions := &zap.Options{}
	zapOptions.BindFlags(flag.CommandLine)

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	log.SetLogger(zap.New(zap.UseFlagOptions(zapOptions)))

	if err := run(context.Background(), o, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
