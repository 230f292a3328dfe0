// Package api exposes the camera fleet over HTTP using Huma v2. The API
// serves camera state and configuration, forwards control commands to
// sessions, and surfaces logs and Prometheus metrics.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camlink/internal/logging"
	"github.com/smazurov/camlink/internal/session"
	"github.com/smazurov/camlink/internal/version"
)

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the Huma v2 API server over a session reactor.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	reactor    *session.Reactor
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(reactor *session.Reactor, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Camlink API", version.Get().Version)
	config.Info.Description = "Camera session supervision and control API"
	// Empty servers list makes OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		reactor: reactor,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Metrics are served outside Huma, no auth required.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// basicAuthMiddleware creates middleware for HTTP basic authentication.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		reject := func(msg string, errs ...error) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Camlink API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
		}

		authHeader := ctx.Header("Authorization")
		if authHeader == "" {
			reject("Authentication required")
			return
		}
		const prefix = "Basic "
		if !strings.HasPrefix(authHeader, prefix) {
			reject("Invalid authentication type")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
		if err != nil {
			reject("Invalid credentials format", err)
			return
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 {
			reject("Invalid credentials format")
			return
		}
		if parts[0] != username || parts[1] != password {
			reject("Invalid credentials")
			return
		}
		next(ctx)
	}
}

// GetMux returns the underlying HTTP ServeMux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start starts the HTTP server on the specified address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Service status"`
	}
}

// VersionResponse carries build information.
type VersionResponse struct {
	Body version.Info
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	// Health check endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		return resp, nil
	})

	// Version endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	s.registerCameraRoutes()
	s.registerLogRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
