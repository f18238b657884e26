// Package server assembles the gateway's HTTP surface.
package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/hr-gateway/pkg/gateway"
	"github.com/Sternrassler/hr-gateway/pkg/logging"
	"github.com/Sternrassler/hr-gateway/pkg/metrics"
)

// CORS header values sent on every response.
const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	AllowHeaders = "Content-Type, Authorization"
)

// Uploader serves the file-upload routes.
type Uploader interface {
	ConfigHandler(w http.ResponseWriter, r *http.Request)
	UploadHandler(w http.ResponseWriter, r *http.Request)
}

// Deps are the handlers the router dispatches to.
type Deps struct {
	Logger   zerolog.Logger
	Gateway  http.Handler
	Geo      http.Handler
	Uploader Uploader
}

// New builds the router.
func New(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(logging.Middleware(deps.Logger))
	router.Use(metrics.Middleware)
	router.Use(recoverer)
	router.Use(cors)

	router.Get("/health", healthHandler)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Method(http.MethodGet, "/api/iplookup", deps.Geo)
	router.Method(http.MethodGet, "/iplookup", deps.Geo)

	router.Get("/api/cloudinary/config", deps.Uploader.ConfigHandler)
	router.Post("/api/cloudinary/upload", deps.Uploader.UploadHandler)

	router.Handle("/api/*", deps.Gateway)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		gateway.WriteError(w, r, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		gateway.WriteError(w, r, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path))
	})

	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// cors sets the permissive cross-origin headers and answers preflight
// requests with 204 before routing.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", AllowOrigin)
		h.Set("Access-Control-Allow-Methods", AllowMethods)
		h.Set("Access-Control-Allow-Headers", AllowHeaders)
		h.Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer converts a panic into a 500 carrying the panic message.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			hlog.FromRequest(r).Error().
				Err(err).
				Str("component", "server").
				Msg("Recovered from panic")
			gateway.WriteError(w, r, http.StatusInternalServerError, err.Error())
		}()

		next.ServeHTTP(w, r)
	})
}
