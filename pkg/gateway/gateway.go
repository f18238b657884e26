// Package gateway relays resource-scoped calls to the backing data source,
// aggregating paginated list reads into a single response.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/hr-gateway/pkg/client"
	"github.com/Sternrassler/hr-gateway/pkg/config"
	"github.com/Sternrassler/hr-gateway/pkg/pagination"
	"github.com/Sternrassler/hr-gateway/pkg/routes"
)

// Backend executes one backing-source call. *client.Client implements it.
type Backend interface {
	Do(ctx context.Context, call client.Call) (*client.Response, error)
}

// ErrorResponse is the JSON body of every gateway-generated failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the body of an aggregated list read.
type ListResponse struct {
	Records []json.RawMessage `json:"records"`
}

// Gateway serves /api/{resource}[/{id}].
type Gateway struct {
	config     config.AirtableConfig
	routes     *routes.Table
	backend    Backend
	aggregator *pagination.Aggregator
}

// New creates a gateway. A nil table selects routes.Default().
func New(cfg config.AirtableConfig, table *routes.Table, backend Backend) *Gateway {
	if table == nil {
		table = routes.Default()
	}
	return &Gateway{
		config:     cfg,
		routes:     table,
		backend:    backend,
		aggregator: pagination.NewAggregator(pagination.Config{MaxPages: cfg.MaxPages}),
	}
}

// ServeHTTP dispatches one data-route call.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r).With().Str("component", "gateway").Logger()

	if err := g.config.Validate(); err != nil {
		logger.Error().Err(err).Msg("Rejecting request: credentials not configured")
		WriteError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	match, ok := g.routes.Lookup(r.URL.Path)
	if !ok {
		WriteError(w, r, http.StatusNotFound, "Not found")
		return
	}

	if !match.Route.Allows(r.Method) {
		w.Header().Set("Allow", match.Route.Allow())
		WriteError(w, r, http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed on %s", r.Method, match.Route.Resource))
		return
	}

	if err := g.dispatch(w, r, match, logger); err != nil {
		var upstreamErr *client.UpstreamError
		if errors.As(err, &upstreamErr) {
			writeRaw(w, upstreamErr.StatusCode, upstreamErr.Body)
			return
		}

		logger.Error().Err(err).Str("resource", match.Route.Resource).Msg("Request failed")
		WriteError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request, match routes.Match, logger zerolog.Logger) error {
	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPatch {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
	}

	fwd := Translate(g.config.BaseID, match, r.Method, r.URL.Query(), body)

	if r.Method == http.MethodGet && match.IsList() && match.Route.Paginated {
		fetcher := &tableFetcher{backend: g.backend, apiURL: g.config.APIURL, request: fwd}
		records, err := g.aggregator.FetchAll(r.Context(), match.Route.Resource, fetcher)
		if err != nil {
			return err
		}

		logger.Debug().
			Str("resource", match.Route.Resource).
			Str("table", match.Route.Table).
			Int("records", len(records)).
			Msg("Relaying aggregated list")

		render.Status(r, http.StatusOK)
		render.JSON(w, r, ListResponse{Records: records})
		return nil
	}

	resp, err := g.backend.Do(r.Context(), fwd.Call(g.config.APIURL))
	if err != nil {
		return err
	}

	writeRaw(w, resp.StatusCode, resp.Body)
	return nil
}

// tableFetcher fetches pages of one translated list request.
type tableFetcher struct {
	backend Backend
	apiURL  string
	request Forwarded
}

func (f *tableFetcher) FetchPage(ctx context.Context, cursor string) (*pagination.Page, error) {
	var extra []QueryParam
	if cursor != "" {
		extra = append(extra, QueryParam{Name: CursorParam, Value: cursor})
	}

	resp, err := f.backend.Do(ctx, f.request.Call(f.apiURL, extra...))
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, client.NewUpstreamError(resp)
	}

	var page pagination.Page
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", f.request.Resource, err)
	}
	return &page, nil
}

// WriteError writes an ErrorResponse with status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// writeRaw relays a backing-source body unchanged.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
