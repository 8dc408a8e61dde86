package photos

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
)

const (
	pexelsDefaultBaseURL = "https://api.pexels.com/v1"
	pexelsPerPage        = 15
)

// PexelsProvider searches the Pexels photo API.
type PexelsProvider struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewPexelsProvider creates a provider for apiKey.
func NewPexelsProvider(apiKey string, client *http.Client) *PexelsProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &PexelsProvider{APIKey: apiKey, BaseURL: pexelsDefaultBaseURL, Client: client}
}

// Name returns the provider name.
func (p *PexelsProvider) Name() string {
	return "pexels"
}

// Search returns landscape photos matching query.
func (p *PexelsProvider) Search(ctx context.Context, query string) ([]Photo, error) {
	if p.APIKey == "" {
		return nil, errors.New("pexels api key missing")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "landscape")
	params.Set("per_page", strconv.Itoa(pexelsPerPage))
	u := strings.TrimRight(p.BaseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("pexels error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Photos []struct {
			ID              int64  `json:"id"`
			Alt             string `json:"alt"`
			Photographer    string `json:"photographer"`
			PhotographerURL string `json:"photographer_url"`
			Src             struct {
				Large2x   string `json:"large2x"`
				Landscape string `json:"landscape"`
				Medium    string `json:"medium"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	out := make([]Photo, 0, len(data.Photos))
	for _, ph := range data.Photos {
		full := ph.Src.Large2x
		if full == "" {
			full = ph.Src.Landscape
		}
		if full == "" {
			continue
		}
		out = append(out, Photo{
			ID:              strconv.FormatInt(ph.ID, 10),
			URL:             full,
			ThumbnailURL:    ph.Src.Medium,
			Alt:             ph.Alt,
			Photographer:    ph.Photographer,
			PhotographerURL: ph.PhotographerURL,
			Source:          p.Name(),
		})
	}
	return out, nil
}
