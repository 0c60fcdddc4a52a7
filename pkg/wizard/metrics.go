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
	"github.com/prometheus/client_golang/prometheus"

	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	//nolint:gochecknoglobals
	dispatchMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_wizard_dispatch_total",
		Help: "Wizard events dispatched, by result",
	}, []string{"result"})

	//nolint:gochecknoglobals
	fetchMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_wizard_fetch_total",
		Help: "Option list fetches, by result",
	}, []string{"result"})

	//nolint:gochecknoglobals
	validationMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "console_wizard_validation_failures_total",
		Help: "Validations that found at least one error",
	})

	//nolint:gochecknoglobals
	renderMetric = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "console_wizard_render_duration",
		Help:    "Time taken to render a wizard",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	//nolint:gochecknoglobals
	submitMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_wizard_submit_total",
		Help: "Wizard submissions, by result",
	}, []string{"result"})
)

//nolint:gochecknoinits
func init() {
	metrics.Registry.MustRegister(dispatchMetric, fetchMetric, validationMetric, renderMetric, submitMetric)
}
