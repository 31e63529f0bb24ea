package modules

import "net/http"

// Api is what a module needs from the HTTP server to expose its handlers.
type Api interface {
	RegisterRoute(r *Route)
	GetPathParams(r *http.Request) map[string]string
}

// Route is one endpoint. A returned error is turned into the response status
// by the router.
type Route struct {
	Path    string
	Methods []string
	Handler func(w http.ResponseWriter, r *http.Request) error
}
