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

package catalog

import (
	"slices"

	"github.com/unikorn-cloud/console/pkg/control"
)

const (
	ProviderAWS   = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"
)

type provider struct {
	name          string
	regions       []string
	zoneSuffixes  []string
	instanceTypes []string
}

// providers is ordered, the first region of each is the default.
//
//nolint:gochecknoglobals
var providers = []provider{
	{
		name:          ProviderAWS,
		regions:       []string{"us-east-1", "us-east-2", "us-west-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-southeast-1"},
		zoneSuffixes:  []string{"a", "b", "c"},
		instanceTypes: []string{"m5.xlarge", "m5.2xlarge", "c5.4xlarge", "r5.2xlarge"},
	},
	{
		name:          ProviderGCP,
		regions:       []string{"us-central1", "us-east1", "europe-west1", "asia-east1"},
		zoneSuffixes:  []string{"-a", "-b", "-c"},
		instanceTypes: []string{"n1-standard-4", "n1-standard-8", "n2-highmem-8"},
	},
	{
		name:          ProviderAzure,
		regions:       []string{"eastus", "westus2", "westeurope", "centralus"},
		zoneSuffixes:  []string{"-1", "-2", "-3"},
		instanceTypes: []string{"Standard_D4s_v3", "Standard_D8s_v3", "Standard_E8s_v3"},
	},
}

func lookupProvider(name string) (*provider, bool) {
	i := slices.IndexFunc(providers, func(p provider) bool {
		return p.name == name
	})

	if i < 0 {
		return nil, false
	}

	return &providers[i], true
}

// providerOptions carry the template key used for the provider's platform
// block as a replacement.
func providerOptions() []control.Option {
	out := make([]control.Option, len(providers))

	for i := range providers {
		out[i] = control.Option{
			Value: providers[i].name,
			Label: providers[i].name,
			Replacements: map[string]any{
				"platform": providers[i].name,
			},
		}
	}

	return out
}

func regionOptions(name string) []control.Option {
	p, ok := lookupProvider(name)
	if !ok {
		return nil
	}

	return options(p.regions...)
}

func zoneOptions(name, region string) []control.Option {
	p, ok := lookupProvider(name)
	if !ok || !slices.Contains(p.regions, region) {
		return nil
	}

	zones := make([]string, len(p.zoneSuffixes))

	for i, suffix := range p.zoneSuffixes {
		zones[i] = region + suffix
	}

	return options(zones...)
}

func instanceTypeOptions(name string) []control.Option {
	p, ok := lookupProvider(name)
	if !ok {
		return nil
	}

	return options(p.instanceTypes...)
}
