// Package templates embeds default configuration and workflow catalog files.
package templates

import "embed"

//go:embed relay.yaml workflows.yaml
var FS embed.FS
