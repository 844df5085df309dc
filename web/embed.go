// Package web provides the embedded browser front end of the viewer.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the assets rooted at dist, so "index.html" opens directly.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
