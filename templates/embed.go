// Package templates embeds the default rig configuration.
package templates

import "embed"

//go:embed config.yaml
var FS embed.FS
