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
	"time"

	"github.com/spf13/pflag"

	"github.com/unikorn-cloud/console/pkg/catalog"
)

// Options allows behaviour to be defined on the CLI.
type Options struct {
	// DefaultInfrastructure is used when a request doesn't name one.
	DefaultInfrastructure string

	// FetchTimeout bounds option list loading.
	FetchTimeout time.Duration
}

func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.DefaultInfrastructure, "default-infrastructure", catalog.ProviderAWS, "Infrastructure provider used when a request doesn't specify one")
	f.DurationVar(&o.FetchTimeout, "fetch-timeout", 10*time.Second, "Time limit for loading control options")
}
