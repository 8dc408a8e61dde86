package photos

import (
	"context"
	"strconv"
)

// StaticProvider serves a fixed set of images regardless of the query. It is
// used when no photo API key is configured.
type StaticProvider struct {
	URLs []string
}

// NewStaticProvider creates a provider over urls.
func NewStaticProvider(urls []string) *StaticProvider {
	return &StaticProvider{URLs: urls}
}

// Name returns the provider name.
func (s *StaticProvider) Name() string {
	return "static"
}

// Search returns every configured image.
func (s *StaticProvider) Search(ctx context.Context, query string) ([]Photo, error) {
	out := make([]Photo, 0, len(s.URLs))
	for i, u := range s.URLs {
		out = append(out, Photo{ID: "static-" + strconv.Itoa(i+1), URL: u, Source: s.Name()})
	}
	return out, nil
}
