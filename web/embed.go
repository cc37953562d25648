// Package web embeds the single-page UI served at GET /.
package web

import "embed"

// Files holds the static UI.
//
//go:embed index.html
var Files embed.FS
