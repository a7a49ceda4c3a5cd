// Package api provides the Lode REST server: asset lifecycle endpoints,
// user and token management, health probes, and the metrics endpoint.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/api/auth"
	"github.com/lodehq/lode/pkg/api/handlers"
	apimiddleware "github.com/lodehq/lode/pkg/api/middleware"
	"github.com/lodehq/lode/pkg/lifecycle"
	"github.com/lodehq/lode/pkg/metrics"
	"github.com/lodehq/lode/pkg/store/metadata"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics (404 when disabled)
//   - POST /users - Register a tenant admin (unauthenticated)
//   - POST /token - Login, returns a bearer token (unauthenticated)
//   - POST/PUT/DELETE /shared-users - Shared-user management (admin only)
//   - POST /fileupload - Upload a primary file with associated files
//   - POST /add-associated-files/{asset_path} - Attach sidecar files
//   - GET /filedownload/{asset_path}/{version_id} - Retrieve an asset
//   - POST /filearchive/{asset_path}/{version_id} - Archive an asset
//   - POST /delfile/{asset_path}/{version_id} - Destroy an archived asset
//   - GET /fileversions/{asset_path}/{filename} - List active versions
func NewRouter(coordinator *lifecycle.Coordinator, jwtService *auth.JWTService, meta metadata.Store) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"metadata": func(ctx context.Context) error {
			_, err := meta.ListAudit(ctx, "", 1)
			return err
		},
	})
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	userHandler := handlers.NewUserHandler(meta, jwtService)
	assetHandler := handlers.NewAssetHandler(coordinator)

	// Public endpoints
	r.Post("/users", userHandler.Create)
	r.Post("/token", userHandler.Token)

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.JWTAuth(jwtService))

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireAdmin())
			r.Post("/shared-users", userHandler.CreateShared)
			r.Put("/shared-users", userHandler.UpdateShared)
			r.Delete("/shared-users", userHandler.DeleteShared)
		})

		r.Post("/fileupload", assetHandler.Upload)
		r.Post("/add-associated-files/*", assetHandler.AddAssociated)
		r.Get("/filedownload/*", assetHandler.Download)
		r.Post("/filearchive/*", assetHandler.Archive)
		r.Post("/delfile/*", assetHandler.Destroy)
		r.Get("/fileversions/*", assetHandler.ListVersions)
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger. Healthcheck
// requests are logged at DEBUG level to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
