// Package httpserver provides the HTTP server shared by the devnet cluster
// and ledger.
//
// BaseServer wires a chi router with request ids, structured request logging
// and panic recovery, then mounts the routes of every RouteRegistrar next to
// the standard health endpoints:
//
//   - /livez: the process is running
//   - /readyz: the server accepts requests
//   - /drain and /undrain: toggle readiness ahead of a shutdown
//
// pprof endpoints are mounted under /debug when EnablePprof is set.
//
// # Usage Example
//
//	func (h *MyHandler) RegisterRoutes(r chi.Router) {
//	    r.Get("/resource/{id}", h.handleGetResource)
//	}
//
//	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr: "localhost:0",
//	    Log:        slog.Default(),
//	}, handler)
//	if err != nil {
//	    return err
//	}
//	if err := srv.RunInBackground(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown()
//	fmt.Println("listening on", srv.Addr())
package httpserver
