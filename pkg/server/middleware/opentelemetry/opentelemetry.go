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


package opentelemetry

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.22.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/unikorn-cloud/console/pkg/constants"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// WizardKindKey records which wizard a request was for.
const WizardKindKey = attribute.Key("console.wizard.kind")

// logValuesFromSpanContext gets a generic set of key/value pairs from a span for logging.
func logValuesFromSpanContext(name string, s trace.SpanContext) []interface{} {
	return []interface{}{
		"span.name", name,
		"span.id", s.SpanID().String(),
		"trace.id", s.TraceID().String(),
	}
}

// logValuesFromSpan gets a generic set of key/value pairs from a span for logging.
func logValuesFromSpan(s sdktrace.ReadOnlySpan) []interface{} {
	values := logValuesFromSpanContext(s.Name(), s.SpanContext())

	for _, attribute := range s.Attributes() {
		values = append(values, string(attribute.Key), attribute.Value.Emit())
	}

	return values
}

// LoggingSpanProcessor logs spans in whatever format is defined by the logger.
// Request spans are logged at info, the render, fetch and access review
// spans beneath them are verbose.
type LoggingSpanProcessor struct{}

// Check the correct interface is implmented.
var _ sdktrace.SpanProcessor = &LoggingSpanProcessor{}

func (*LoggingSpanProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	log.Log.V(1).Info("span start", logValuesFromSpan(s)...)
}

func (*LoggingSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if s.SpanKind() != trace.SpanKindServer {
		log.Log.V(1).Info("span end", logValuesFromSpan(s)...)
		return
	}

	log.Log.Info("span end", logValuesFromSpan(s)...)
}

func (*LoggingSpanProcessor) Shutdown(_ context.Context) error {
	return nil
}

func (*LoggingSpanProcessor) ForceFlush(_ context.Context) error {
	return nil
}

// sensitiveHeaders are never recorded, user agent has its own attribute.
func sensitiveHeaders() []string {
	return []string{
		"authorization",
		"cookie",
		"set-cookie",
		"user-agent",
	}
}

func httpHeaderAttributes(header http.Header, prefix string) []attribute.KeyValue {
	attr := make([]attribute.KeyValue, 0, len(header))

	for key, values := range header {
		normalizedKey := strings.ToLower(key)

		if slices.Contains(sensitiveHeaders(), normalizedKey) {
			continue
		}

		key := attribute.Key(prefix + "." + normalizedKey)

		if len(values) == 1 {
			attr = append(attr, key.String(values[0]))
		} else {
			attr = append(attr, key.StringSlice(values))
		}
	}

	return attr
}

// hostPort splits an address, the port is omitted when absent or invalid.
func hostPort(address string) (string, int, bool) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address, 0, false
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return host, 0, false
	}

	return host, p, true
}

// httpRequestAttributes gets what it can from a request on a best effort basis.
func httpRequestAttributes(r *http.Request) []attribute.KeyValue {
	attr := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRequestBodySize(int(r.ContentLength)),
		semconv.URLPath(r.URL.Path),
	}

	if name, version, ok := strings.Cut(r.Proto, "/"); ok {
		attr = append(attr, semconv.NetworkProtocolName(name), semconv.NetworkProtocolVersion(version))
	}

	if userAgent := r.UserAgent(); userAgent != "" {
		attr = append(attr, semconv.UserAgentOriginal(userAgent))
	}

	scheme := "http"

	if r.TLS != nil {
		scheme = "https"
	}

	attr = append(attr, semconv.URLScheme(scheme))

	if r.URL.RawQuery != "" {
		attr = append(attr, semconv.URLQuery(r.URL.RawQuery))
	}

	if host, port, ok := hostPort(r.Host); ok {
		attr = append(attr, semconv.ServerAddress(host), semconv.ServerPort(port))
	} else if host != "" {
		attr = append(attr, semconv.ServerAddress(host))
	}

	if host, port, ok := hostPort(r.RemoteAddr); ok {
		attr = append(attr, semconv.ClientAddress(host), semconv.ClientPort(port))
	}

	attr = append(attr, httpHeaderAttributes(r.Header, "http.request.header")...)

	return attr
}

func httpResponseAttributes(w middleware.WrapResponseWriter) []attribute.KeyValue {
	attr := []attribute.KeyValue{
		semconv.HTTPResponseStatusCode(status(w)),
		semconv.HTTPResponseBodySize(w.BytesWritten()),
	}

	return append(attr, httpHeaderAttributes(w.Header(), "http.response.header")...)
}

// status defaults to OK when nothing was written.
func status(w middleware.WrapResponseWriter) int {
	if w.Status() == 0 {
		return http.StatusOK
	}

	return w.Status()
}

func httpStatusToOtelCode(status int) (codes.Code, string) {
	code := codes.Ok

	if status >= 400 {
		code = codes.Error
	}

	return code, http.StatusText(status)
}

// routeAttributes are only known once chi has routed the request.
func routeAttributes(r *http.Request) (string, []attribute.KeyValue) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "", nil
	}

	pattern := rctx.RoutePattern()
	if pattern == "" {
		return "", nil
	}

	attr := []attribute.KeyValue{
		semconv.HTTPRoute(pattern),
	}

	if kind := rctx.URLParam("kind"); kind != "" {
		attr = append(attr, WizardKindKey.String(kind))
	}

	return pattern, attr
}

// Middleware starts a server span per request and attaches a logger with
// the span's identifiers to the request context.  Spans start named by path
// and are renamed by route once chi has matched one, so wizard kinds and
// control ids don't inflate span cardinality.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attr := []attribute.KeyValue{
				semconv.ServiceName(constants.Application),
				semconv.ServiceVersion(constants.Version),
			}

			attr = append(attr, httpRequestAttributes(r)...)

			tracer := otel.GetTracerProvider().Tracer(constants.Application)

			name := r.Method + " " + r.URL.Path

			ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attr...))
			defer span.End()

			ctx = log.IntoContext(ctx, log.Log.WithValues(logValuesFromSpanContext(name, span.SpanContext())...))

			request := r.WithContext(ctx)

			writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(writer, request)

			if pattern, routeAttr := routeAttributes(request); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(routeAttr...)
			}

			span.SetAttributes(httpResponseAttributes(writer)...)
			span.SetStatus(httpStatusToOtelCode(status(writer)))
		})
	}
}
