package main

import (
	"github.com/go-chi/chi/v5"

	"github.com/DBYGuy/truthforge/services"
)

// adminRegistrar mounts the public API together with the administrative
// routes. Deployments that must not expose admin operations can register
// the API directly instead.
type adminRegistrar struct {
	api *services.HTTPServer
}

func (r *adminRegistrar) RegisterRoutes(router chi.Router) {
	r.api.RegisterRoutes(router)
	r.api.RegisterAdminRoutes(router)
}
