// Package httpserver provides the reusable HTTP server shell for
// truthforge services.
//
// It implements a base server with standard health endpoints, graceful
// shutdown, an optional metrics listener and flexible routing, so the
// consensus API and any auxiliary services share one lifecycle.
//
// # Key Components
//
//   - BaseServer: core HTTP server with health checks, metrics and
//     lifecycle management
//   - RouteRegistrar: interface for components to register their routes
//
// # Health and Diagnostics
//
// Every server built on BaseServer includes:
//
//   - Liveness check (/livez)
//   - Readiness check (/readyz)
//   - Drain control for load balancers (/drain, /undrain)
//   - Optional Prometheus metrics on a separate listener
//   - Optional pprof debugging endpoints
//
// # Usage
//
//	api := services.NewHTTPServer(poolService, cfg, log)
//	srv, err := httpserver.New(serverConfig, api)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
