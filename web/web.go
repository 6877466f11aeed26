// Package web holds the embedded HTML templates and static assets so
// the binary is self-contained and handler tests need no
// working-directory setup.
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed static
var Static embed.FS
