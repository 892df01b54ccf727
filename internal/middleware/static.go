package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

// StaticFileServer serves the device front-end bundles under /web.
// The bundles rarely change during an event, so they are cached hard.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			http.ServeFile(w, r, path)
			return
		}

		http.NotFound(w, r)
	})
}
