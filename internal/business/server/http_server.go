package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime/strictmiddleware/nethttp"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/config"
)

// createHTTPServer creates the dashboard http server using the given config
func createHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) (*http.Server, error) {
	if err := initMeters(ctx, cfg); err != nil {
		return nil, err
	}

	api := newDashboardAPI(deps)
	middleware := newTraceMiddleware(cfg)
	mux := http.NewServeMux()

	handle := func(pattern, operationID string, f nethttp.StrictHTTPHandlerFunc) {
		h := middleware(f, operationID)
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			response, err := h(r.Context(), w, r, nil)
			if err != nil {
				slogctx.Error(r.Context(), "Handler failed", "operation", operationID, "error", err)
				response = toErrorModel(err)
			}

			resp, ok := response.(responseObject)
			if !ok {
				slogctx.Error(r.Context(), "Unexpected response type", "operation", operationID)
				resp = toErrorModel(nil)
			}

			if err := resp.visit(w); err != nil {
				slogctx.Error(r.Context(), "Failed to write response", "operation", operationID, "error", err)
			}
		})
	}

	handle("GET /ping", "Ping", ping)
	handle("GET /api/v1/session", "GetSession", api.GetSession)
	handle("POST /api/v1/session", "Login", api.Login)
	handle("DELETE /api/v1/session", "Logout", api.Logout)
	handle("GET /api/v1/preferences", "GetPreferences", api.GetPreferences)
	handle("PUT /api/v1/preferences", "PutPreferences", api.PutPreferences)
	handle("DELETE /api/v1/cache", "ClearCache", api.ClearCache)
	handle("GET /api/v1/{resource}", "GetResource", api.GetResource)

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: mux,
	}, nil
}

// StartHTTPServer starts the dashboard HTTP server and blocks until ctx is
// done.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	server, err := createHTTPServer(ctx, cfg, deps)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default. Binding to a unix socket saves the
	// tests from looking up a free port.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
