// Package templates embeds the files written by dropzone init.
package templates

import "embed"

//go:embed config.yaml processors
var FS embed.FS
