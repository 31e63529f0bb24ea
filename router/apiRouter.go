package router

import (
	"github.com/metrico/tierflow/handler"
	"github.com/metrico/tierflow/modules"
)

// InitHandlers exposes the loader operations on api.
func InitHandlers(api modules.Api, h *handler.Handler) {
	h.API = api
	for _, r := range []*modules.Route{
		{Path: "/health", Methods: []string{"GET"}, Handler: h.Health},
		{Path: "/files", Methods: []string{"GET"}, Handler: h.Files},
		{Path: "/files/{id:[0-9]+}", Methods: []string{"GET"}, Handler: h.FileInfo},
		{Path: "/resolve", Methods: []string{"POST"}, Handler: h.Resolve},
		{Path: "/entries", Methods: []string{"POST"}, Handler: h.Entries},
		{Path: "/load", Methods: []string{"POST"}, Handler: h.Load},
	} {
		api.RegisterRoute(r)
	}
}
