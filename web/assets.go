// Package web contains the embedded app shell served when no public
// directory is configured.
package web

import (
	"embed"
	"io/fs"
)

//go:embed public
var assets embed.FS

// Public returns the embedded public tree rooted at its top directory.
func Public() fs.FS {
	sub, err := fs.Sub(assets, "public")
	if err != nil {
		panic(err)
	}
	return sub
}
