// Package ui serves the embedded session dashboard.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded dashboard files rooted at dist/.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// Handler serves the dashboard. Existing files are served as-is, asset-like
// paths that do not exist get a 404, and every other path gets index.html.
// The API lives under /api/ and is never answered here.
func Handler() (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}
	files := http.FileServerFS(sub)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if strings.HasPrefix(name, "api/") || name == "api" {
			http.NotFound(w, r)
			return
		}

		if name == "" || name == "index.html" {
			serveIndex(w, r, files)
			return
		}
		if _, err := fs.Stat(sub, name); err == nil {
			files.ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		serveIndex(w, r, files)
	}), nil
}

func serveIndex(w http.ResponseWriter, r *http.Request, files http.Handler) {
	// The page polls for live state; never let a browser pin an old copy.
	w.Header().Set("Cache-Control", "no-cache")
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	files.ServeHTTP(w, r2)
}
