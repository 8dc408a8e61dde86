package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GeocodeResult is what a reverse lookup knows about a coordinate.
type GeocodeResult struct {
	Address string
	City    string
	Country string
}

// Geocoder turns coordinates into a city and country.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*GeocodeResult, error)
}

// MapboxGeocoder uses the Mapbox reverse geocoding v6 API.
type MapboxGeocoder struct {
	AccessToken string
	BaseURL     string
	Client      *http.Client
}

func (g *MapboxGeocoder) Reverse(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}
	base := g.BaseURL
	if base == "" {
		base = "https://api.mapbox.com"
	}

	q := url.Values{}
	q.Set("longitude", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("access_token", g.AccessToken)
	q.Set("types", "place")
	q.Set("language", "en")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/search/geocode/v6/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("mapbox error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Features []struct {
			Properties struct {
				FullAddress string `json:"full_address"`
				Name        string `json:"name"`
				Context     struct {
					Place struct {
						Name string `json:"name"`
					} `json:"place"`
					Country struct {
						Name string `json:"name"`
					} `json:"country"`
				} `json:"context"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if len(data.Features) == 0 {
		return nil, nil
	}

	props := data.Features[0].Properties
	city := props.Context.Place.Name
	if city == "" {
		city = props.Name
	}
	return &GeocodeResult{
		Address: props.FullAddress,
		City:    city,
		Country: strings.ToUpper(props.Context.Country.Name),
	}, nil
}

// NominatimGeocoder uses OSM Nominatim.
// CAUTION: Requires User-Agent and has strict rate limits (1 req/sec)
type NominatimGeocoder struct {
	UserAgent string
	BaseURL   string
	Client    *http.Client
	mu        sync.Mutex
	lastCall  time.Time
}

func (g *NominatimGeocoder) wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if elapsed := time.Since(g.lastCall); elapsed < time.Second {
		timer := time.NewTimer(time.Second - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.lastCall = time.Now()
	return nil
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	base := g.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("addressdetails", "1")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	city := data.Address.City
	if city == "" {
		city = data.Address.Town
	}
	if city == "" {
		city = data.Address.Village
	}
	if city == "" && data.Address.Country == "" {
		return nil, nil
	}

	return &GeocodeResult{
		Address: data.DisplayName,
		City:    city,
		Country: strings.ToUpper(data.Address.Country),
	}, nil
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Reverse(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	res, err := g.Primary.Reverse(ctx, lat, lng)
	if err != nil || res == nil {
		return g.Secondary.Reverse(ctx, lat, lng)
	}
	return res, nil
}
