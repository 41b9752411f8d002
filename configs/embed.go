// Package configs provides the embedded configuration template for docvector.
//
// The template is embedded at build time so it is available in all
// distributions. It is written out by `docvector init`.
package configs

import _ "embed"

// ConfigTemplate is the annotated template for .docvector.yaml.
//
//go:embed docvector.example.yaml
var ConfigTemplate string
