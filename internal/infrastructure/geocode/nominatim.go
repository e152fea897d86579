// Package geocode resolves free-text place queries into candidate
// meetup spots via a Nominatim-compatible search service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Candidate is one place-search result.
type Candidate struct {
	// Label is the short name, the leading segment of the display name.
	Label string
	// Address is the full display name.
	Address   string
	Latitude  float64
	Longitude float64
}

// Geocoder resolves a query into candidates. Implementations must not
// issue a network call for empty or whitespace-only queries.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// Nominatim is a thin client over the Nominatim search API. It keeps
// no state beyond its HTTP client; no rate limiting is applied here.
type Nominatim struct {
	baseURL string
	limit   int
	client  *http.Client
}

// NewNominatim builds a client for the given service root. limit caps
// the number of candidates per query.
func NewNominatim(baseURL string, limit int, timeout time.Duration) *Nominatim {
	if limit <= 0 {
		limit = 5
	}
	return &Nominatim{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ Geocoder = (*Nominatim)(nil)

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search queries the service. A blank query short-circuits to an empty
// result without touching the network. Transport and decode failures
// surface as errors alongside a nil slice.
func (n *Nominatim) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search?format=json&q=%s&limit=%d",
		n.baseURL, url.QueryEscape(query), n.limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: search %q: unexpected status %d", query, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Label:     shortLabel(r.DisplayName),
			Address:   r.DisplayName,
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return candidates, nil
}

func shortLabel(displayName string) string {
	head, _, _ := strings.Cut(displayName, ",")
	return strings.TrimSpace(head)
}
