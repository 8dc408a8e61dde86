// Package photos finds decorative background photos for a destination.
package photos

import (
	"context"
	"errors"
)

var ErrNoPhotos = errors.New("no photos found")

// Photo is one background image.
type Photo struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	Alt             string `json:"alt,omitempty"`
	Photographer    string `json:"photographer,omitempty"`
	PhotographerURL string `json:"photographerUrl,omitempty"`
	Source          string `json:"source"`
}

// Provider searches a photo backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Photo, error)
}

// Pick returns one photo chosen by index, which receives the list length and
// must return a value in [0, n).
func Pick(list []Photo, index func(n int) int) (Photo, error) {
	if len(list) == 0 {
		return Photo{}, ErrNoPhotos
	}
	i := 0
	if index != nil {
		i = index(len(list))
	}
	if i < 0 || i >= len(list) {
		i = 0
	}
	return list[i], nil
}
