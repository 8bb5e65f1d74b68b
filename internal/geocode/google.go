package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 5 * time.Second

// Client reverse-geocodes through an HTTP API speaking the Google Geocoding
// response format. Concurrent lookups of the same coordinates share one request.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	group   singleflight.Group
}

// NewClient creates a geocoding client for baseURL authenticated with apiKey
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type addressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		AddressComponents []addressComponent `json:"address_components"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

type place struct {
	city, country string
}

// ReverseGeocode returns the locality and country containing (lat, lng)
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, string, error) {
	latlng := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)

	// The shared lookup outlives any single caller; each caller still stops waiting
	// when its own ctx is done.
	ch := c.group.DoChan(latlng, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		return c.lookup(lookupCtx, latlng)
	})
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", "", res.Err
		}
		p := res.Val.(place)
		return p.city, p.country, nil
	}
}

func (c *Client) lookup(ctx context.Context, latlng string) (place, error) {
	q := url.Values{}
	q.Set("latlng", latlng)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return place{}, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return place{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return place{}, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return place{}, fmt.Errorf("decode geocode response: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return place{}, ErrNoResult
	default:
		return place{}, fmt.Errorf("geocode status %s: %s", body.Status, body.ErrorMessage)
	}

	var p place
	for _, result := range body.Results {
		for _, comp := range result.AddressComponents {
			for _, typ := range comp.Types {
				switch typ {
				case "locality":
					if p.city == "" {
						p.city = comp.LongName
					}
				case "country":
					if p.country == "" {
						p.country = comp.LongName
					}
				}
			}
		}
		if p.city != "" && p.country != "" {
			break
		}
	}
	if p.city == "" && p.country == "" {
		return place{}, ErrNoResult
	}
	return p, nil
}
