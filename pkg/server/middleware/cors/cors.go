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

package cors

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"github.com/unikorn-cloud/core/pkg/server/errors"
)

type Options struct {
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAge         int
}

func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringSliceVar(&o.AllowedOrigins, "cors-allow-origin", []string{"*"}, "CORS allowed origins")
	f.StringSliceVar(&o.AllowedHeaders, "cors-allow-header", defaultHeaders(), "CORS allowed request headers")
	f.IntVar(&o.MaxAge, "cors-max-age", 86400, "CORS maximum age (may be overridden by the browser)")
}

// defaultHeaders allow authentication, JSON bodies and trace propagation.
func defaultHeaders() []string {
	return []string{
		"Authorization",
		"Content-Type",
		"traceparent",
		"tracestate",
	}
}

func (o *Options) headers() []string {
	if len(o.AllowedHeaders) == 0 {
		return defaultHeaders()
	}

	return o.AllowedHeaders
}

// methods are those that may be advertised on preflight.
func methods() []string {
	return []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
}

// Middleware answers preflight requests for any route known to the
// router, advertising the methods it is registered for.
func Middleware(routes chi.Routes, options *Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// All requests get the allow origin header.
			for _, origin := range options.AllowedOrigins {
				w.Header().Add("Access-Control-Allow-Origin", origin)
			}

			// For normal requests handle them.
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// Handle preflight
			method := r.Header.Get("Access-Control-Request-Method")
			if method == "" {
				errors.HandleError(w, r, errors.OAuth2InvalidRequest("OPTIONS missing Access-Control-Request-Method header"))
				return
			}

			var allowed []string

			for _, m := range methods() {
				if routes.Match(chi.NewRouteContext(), m, r.URL.Path) {
					allowed = append(allowed, m)
				}
			}

			if len(allowed) == 0 {
				errors.HandleError(w, r, errors.HTTPNotFound())
				return
			}

			if !slices.Contains(allowed, method) {
				errors.HandleError(w, r, errors.OAuth2InvalidRequest(method+" not supported by "+r.URL.Path))
				return
			}

			allowed = append(allowed, http.MethodOptions)

			w.Header().Add("Access-Control-Allow-Methods", strings.Join(allowed, ", "))
			w.Header().Add("Access-Control-Allow-Headers", strings.Join(options.headers(), ", "))
			w.Header().Add("Access-Control-Max-Age", strconv.Itoa(options.MaxAge))
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
