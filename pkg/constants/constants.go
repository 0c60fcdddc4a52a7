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

package constants

import (
	"os"
	"path"
)

var (
	// Application is the application name.
	//nolint:gochecknoglobals
	Application = path.Base(os.Args[0])

	// Version is the application version set at link time.
	//nolint:gochecknoglobals
	Version string

	// Revision is the git revision set at link time.
	//nolint:gochecknoglobals
	Revision string
)

const (
	// MetadataDomain prefixes all labels and annotations owned by the console.
	MetadataDomain = "console.unikorn-cloud.org"

	// ProviderLabel is attached to credential secrets to identify the
	// infrastructure provider they grant access to.
	ProviderLabel = MetadataDomain + "/provider"

	// CredentialLabel marks a secret as a console managed credential.
	CredentialLabel = MetadataDomain + "/credential"

	// ConnectionAnnotation records the credential a resource was created with.
	ConnectionAnnotation = MetadataDomain + "/connection"

	// SingleNodeAnnotation records whether a cluster pool is single node.
	SingleNodeAnnotation = MetadataDomain + "/single-node"

	// AddonVersionAnnotation records the requested add-on version.
	AddonVersionAnnotation = MetadataDomain + "/addon-version"

	// WizardKindAnnotation records the wizard a resource was rendered by.
	WizardKindAnnotation = MetadataDomain + "/wizard"
)
