// Package geo serves the IP geolocation enrichment route.
//
// The route never fails: any lookup problem yields a degraded Result whose
// payload is returned with status 200.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/hr-gateway/pkg/cache"
	"github.com/Sternrassler/hr-gateway/pkg/logging"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hr_gateway_geo_lookups_total",
	Help: "Total geolocation lookups by outcome",
}, []string{"outcome"})

// cacheNamespace groups geolocation entries in the cache.
const cacheNamespace = "geo"

// Config holds lookup configuration.
type Config struct {
	// URL is the lookup service base; calls go to {URL}/{ip}/json/.
	URL string

	// Timeout bounds a single lookup call.
	Timeout time.Duration

	// CacheTTL is how long located results are kept.
	CacheTTL time.Duration
}

// DefaultConfig returns the ipapi.co endpoint with a 5s timeout and 6h cache.
func DefaultConfig() Config {
	return Config{
		URL:      "https://ipapi.co",
		Timeout:  5 * time.Second,
		CacheTTL: 6 * time.Hour,
	}
}

// Service looks up client locations.
type Service struct {
	httpClient *http.Client
	config     Config
	cache      *cache.Manager
	logger     zerolog.Logger
}

// NewService creates a lookup service. cacheManager may be nil.
func NewService(cfg Config, cacheManager *cache.Manager) *Service {
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &Service{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		cache:      cacheManager,
		logger:     logging.NewLogger("geo"),
	}
}

// ServeHTTP answers GET /api/iplookup with status 200 in every case.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := s.Lookup(r.Context(), ClientIP(r))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result.Location)
}

// Lookup resolves ip. It never returns an error; failures yield a degraded result.
func (s *Service) Lookup(ctx context.Context, ip string) Result {
	if cached, ok := s.fromCache(ctx, ip); ok {
		lookupsTotal.WithLabelValues("cached").Inc()
		return cached
	}

	loc, err := s.fetch(ctx, ip)
	if err != nil {
		lookupsTotal.WithLabelValues(string(OutcomeDegraded)).Inc()
		s.logger.Warn().Err(err).Str("ip", ip).Msg("Geolocation lookup degraded")
		return Degraded(ip, err.Error())
	}

	lookupsTotal.WithLabelValues(string(OutcomeLocated)).Inc()
	result := Located(loc)
	s.store(ctx, ip, result.Location)
	return result
}

// ipapiResponse is the subset of the lookup service's JSON we read.
type ipapiResponse struct {
	IP          string   `json:"ip"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	CountryCode string   `json:"country_code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Timezone    string   `json:"timezone"`

	// Error and Reason are set on rate limiting and reserved addresses.
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func (s *Service) fetch(ctx context.Context, ip string) (Location, error) {
	target := s.config.URL + "/json/"
	if ip != "" {
		target = s.config.URL + "/" + url.PathEscape(ip) + "/json/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Location{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Location{}, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Location{}, fmt.Errorf("lookup service returned status %d", resp.StatusCode)
	}

	var data ipapiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return Location{}, fmt.Errorf("decode lookup response: %w", err)
	}
	if data.Error {
		return Location{}, errors.New("lookup service error: " + data.Reason)
	}

	if data.IP == "" {
		data.IP = ip
	}
	return Location{
		IP:          data.IP,
		City:        data.City,
		Region:      data.Region,
		Country:     data.CountryName,
		CountryCode: data.CountryCode,
		Latitude:    data.Latitude,
		Longitude:   data.Longitude,
		Timezone:    data.Timezone,
	}, nil
}

func (s *Service) fromCache(ctx context.Context, ip string) (Result, bool) {
	if s.cache == nil || ip == "" {
		return Result{}, false
	}

	entry, err := s.cache.Get(ctx, cache.CacheKey{Namespace: cacheNamespace, ID: ip})
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("ip", ip).Msg("Geolocation cache read failed")
		}
		return Result{}, false
	}

	var loc Location
	if err := json.Unmarshal(entry.Data, &loc); err != nil {
		s.logger.Warn().Err(err).Str("ip", ip).Msg("Discarding malformed geolocation cache entry")
		return Result{}, false
	}
	return Located(loc), true
}

func (s *Service) store(ctx context.Context, ip string, loc Location) {
	if s.cache == nil || ip == "" {
		return
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.CacheKey{Namespace: cacheNamespace, ID: ip}, cache.NewEntry(data, s.config.CacheTTL)); err != nil {
		s.logger.Warn().Err(err).Str("ip", ip).Msg("Geolocation cache write failed")
	}
}

// ClientIP returns the caller address from CF-Connecting-IP, the first
// X-Forwarded-For entry, or RemoteAddr, in that order.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
