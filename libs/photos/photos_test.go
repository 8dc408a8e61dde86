package photos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("cache unavailable")
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingProvider struct {
	calls  int
	photos []Photo
	err    error
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Search(ctx context.Context, query string) ([]Photo, error) {
	c.calls++
	return c.photos, c.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPexelsProviderSearch(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		assert.Equal(t, "/v1/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"photos":[
			{"id":101,"alt":"Bosphorus","photographer":"Ayşe","photographer_url":"https://pexels.test/ayse",
			 "src":{"large2x":"https://img.test/101-2x.jpg","landscape":"https://img.test/101-l.jpg","medium":"https://img.test/101-m.jpg"}},
			{"id":102,"src":{"landscape":"https://img.test/102-l.jpg"}},
			{"id":103,"src":{}}
		]}`)
	}))
	defer srv.Close()

	p := NewPexelsProvider("secret-key", srv.Client())
	p.BaseURL = srv.URL + "/v1"

	got, err := p.Search(context.Background(), "istanbul boğazı")
	require.NoError(t, err)

	assert.Equal(t, "secret-key", gotAuth)
	assert.Equal(t, "istanbul boğazı", gotQuery)
	require.Len(t, got, 2)
	assert.Equal(t, Photo{
		ID:              "101",
		URL:             "https://img.test/101-2x.jpg",
		ThumbnailURL:    "https://img.test/101-m.jpg",
		Alt:             "Bosphorus",
		Photographer:    "Ayşe",
		PhotographerURL: "https://pexels.test/ayse",
		Source:          "pexels",
	}, got[0])
	assert.Equal(t, "https://img.test/102-l.jpg", got[1].URL)
}

func TestPexelsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPexelsProvider("key", srv.Client())
	p.BaseURL = srv.URL
	_, err := p.Search(context.Background(), "roma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewPexelsProvider("", nil).Search(context.Background(), "roma")
	assert.Error(t, err)
}

func TestCachedProviderServesRepeatQueriesFromCache(t *testing.T) {
	next := &countingProvider{photos: []Photo{{ID: "1", URL: "https://img.test/1.jpg", Source: "counting"}}}
	cache := newMemoryCache()
	cp := NewCachedProvider(next, cache, time.Hour, discardLogger())

	first, err := cp.Search(context.Background(), "Paris")
	require.NoError(t, err)
	second, err := cp.Search(context.Background(), "  PARİS ")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Hour, cache.ttls[cacheKeyPrefix+"counting:paris"])
}

func TestCachedProviderFallsThroughOnCacheError(t *testing.T) {
	next := &countingProvider{photos: []Photo{{ID: "1", URL: "u"}}}
	cache := newMemoryCache()
	cache.failGet = true
	cp := NewCachedProvider(next, cache, time.Minute, discardLogger())

	got, err := cp.Search(context.Background(), "roma")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	next := &countingProvider{err: errors.New("upstream down")}
	cache := newMemoryCache()
	cp := NewCachedProvider(next, cache, time.Minute, discardLogger())

	_, err := cp.Search(context.Background(), "roma")
	assert.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestFallbackProvider(t *testing.T) {
	primary := &countingProvider{err: errors.New("down")}
	secondary := NewStaticProvider([]string{"https://img.test/a.jpg", "https://img.test/b.jpg"})
	fp := &FallbackProvider{Primary: primary, Secondary: secondary}

	got, err := fp.Search(context.Background(), "roma")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "static", got[0].Source)
	assert.Equal(t, "static-2", got[1].ID)
}

func TestPick(t *testing.T) {
	list := []Photo{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, err := Pick(list, func(n int) int { return n - 1 })
	require.NoError(t, err)
	assert.Equal(t, "c", got.ID)

	got, err = Pick(list, func(n int) int { return 99 })
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = Pick(nil, nil)
	assert.ErrorIs(t, err, ErrNoPhotos)
}
