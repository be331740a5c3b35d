package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeOf returns the chi pattern that matched r. chi fills the pattern in
// while routing, so callers must read it after the next handler returned.
func routeOf(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return fallback
}
