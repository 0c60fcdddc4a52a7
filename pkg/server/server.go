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

package server

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/unikorn-cloud/console/pkg/server/handler"
	"github.com/unikorn-cloud/console/pkg/server/middleware/cors"
	"github.com/unikorn-cloud/console/pkg/server/middleware/opentelemetry"
	"github.com/unikorn-cloud/console/pkg/submit"

	"k8s.io/client-go/rest"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// ErrToken is raised when a request carries no bearer token.
	ErrToken = errors.New("bearer token required")
)

type Server struct {
	// Options are server specific options e.g. listener address etc.
	Options Options

	// ZapOptions configure logging.
	ZapOptions zap.Options

	// HandlerOptions sets options for the HTTP handler.
	HandlerOptions handler.Options

	// CORSOptions are for remote resource sharing.
	CORSOptions cors.Options

	// SubmitOptions control resource creation.
	SubmitOptions submit.Options
}

func (s *Server) AddFlags(goflags *flag.FlagSet, flags *pflag.FlagSet) {
	s.ZapOptions.BindFlags(goflags)

	s.Options.AddFlags(flags)
	s.HandlerOptions.AddFlags(flags)
	s.CORSOptions.AddFlags(flags)
	s.SubmitOptions.AddFlags(flags)
}

func (s *Server) SetupLogging() {
	log.SetLogger(zap.New(zap.UseFlagOptions(&s.ZapOptions)))
}

// SetupOpenTelemetry adds a span processor that will print root spans to the
// logs by default, and optionally ship the spans to an OTLP listener.
func (s *Server) SetupOpenTelemetry(ctx context.Context) error {
	otel.SetLogger(log.Log)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(&opentelemetry.LoggingSpanProcessor{}),
	}

	if s.Options.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(s.Options.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return err
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(sdktrace.NewTracerProvider(opts...))

	return nil
}

// UserClient returns clients that forward the caller's bearer token so
// access reviews and resource creation are subject to their RBAC.
func UserClient(config *rest.Config, options client.Options) handler.ClientGetter {
	return func(r *http.Request) (client.Client, error) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			return nil, ErrToken
		}

		user := rest.AnonymousClientConfig(config)
		user.BearerToken = token

		return client.New(user, options)
	}
}

func (s *Server) pprof() {
	pprofHandler := http.NewServeMux()
	pprofHandler.HandleFunc("/debug/pprof/", pprof.Index)
	pprofHandler.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	pprofHandler.HandleFunc("/debug/pprof/profile", pprof.Profile)
	pprofHandler.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	pprofHandler.HandleFunc("/debug/pprof/trace", pprof.Trace)

	pprofServer := http.Server{
		Addr:              s.Options.PprofAddress,
		ReadTimeout:       s.Options.ReadTimeout,
		ReadHeaderTimeout: s.Options.ReadHeaderTimeout,
		WriteTimeout:      s.Options.WriteTimeout,
		Handler:           pprofHandler,
	}

	if err := pprofServer.ListenAndServe(); err != nil {
		log.Log.Error(err, "pprof server exited")
	}
}

// Handler returns the routed API.
func (s *Server) Handler(userClient handler.ClientGetter) http.Handler {
	// Middleware specified here is applied to all requests pre-routing.
	router := chi.NewRouter()
	router.Use(middleware.Timeout(s.Options.RequestTimeout))
	router.Use(opentelemetry.Middleware())
	router.Use(cors.Middleware(router, &s.CORSOptions))
	router.NotFound(http.HandlerFunc(handler.NotFound))
	router.MethodNotAllowed(http.HandlerFunc(handler.MethodNotAllowed))

	handler.New(&s.HandlerOptions, &s.SubmitOptions, userClient).Routes(router)

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return router
}

func (s *Server) GetServer(config *rest.Config, options client.Options) (*http.Server, error) {
	if s.Options.PprofAddress != "" {
		go s.pprof()
	}

	server := &http.Server{
		Addr:              s.Options.ListenAddress,
		ReadTimeout:       s.Options.ReadTimeout,
		ReadHeaderTimeout: s.Options.ReadHeaderTimeout,
		WriteTimeout:      s.Options.WriteTimeout,
		Handler:           s.Handler(UserClient(config, options)),
	}

	return server, nil
}
