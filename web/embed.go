// Package web embeds the HTML templates used for printable documents.
package web

import "embed"

// Templates embeds the document templates rendered through Gotenberg.
//
//go:embed templates/*.html
var Templates embed.FS
