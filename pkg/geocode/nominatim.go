// Package geocode resolves postal addresses to coordinates through the
// Nominatim API, with a fallback ladder for addresses the full query cannot
// resolve.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrNoResult is returned when the geocoder finds no match for a query.
var ErrNoResult = eris.New("geocode: no result")

// Result is one geocoded point.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder resolves a free-form query to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Nominatim queries the OSM Nominatim search endpoint. Usage policy requires
// an identifying user agent and at most one request per second, which the
// built-in limiter enforces.
type Nominatim struct {
	baseURL   string
	userAgent string
	referer   string
	client    *http.Client
	limiter   *rate.Limiter
}

// NominatimOptions configures a Nominatim client.
type NominatimOptions struct {
	BaseURL   string // default https://nominatim.openstreetmap.org
	UserAgent string
	Referer   string
	RPS       float64 // requests per second, default 1
	Timeout   time.Duration
}

// NewNominatim creates a Nominatim client.
func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "annuaire-cli/1.0 (contact@sirene-labs.fr)"
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Nominatim{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		referer:   opts.Referer,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), 1),
	}
}

// nominatimPlace mirrors the wire format: coordinates arrive as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a single query. Returns ErrNoResult when the API answers
// with an empty result set.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limiter wait")
	}

	u := n.baseURL + "/search?" + url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"0"},
		"countrycodes":   {"fr"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	if n.referer != "" {
		req.Header.Set("Referer", n.referer)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: query %q", query)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: unexpected status %d for %q", resp.StatusCode, query)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}
	if len(places) == 0 {
		return nil, ErrNoResult
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse latitude %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse longitude %q", places[0].Lon)
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: places[0].DisplayName,
	}, nil
}
