package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/istadmins/RotamBenim-sub000/libs/mailer"
	"github.com/istadmins/RotamBenim-sub000/libs/photos"
	"github.com/istadmins/RotamBenim-sub000/libs/places"
	"github.com/istadmins/RotamBenim-sub000/libs/route"
)

const (
	testUserID    int64 = 1
	testUserEmail       = "gezgin@example.com"
)

var errFakeStoreDown = errors.New("store down")

// fakeRepo is an in-memory stand-in for the Postgres store hooks.
type fakeRepo struct {
	mu         sync.Mutex
	places     map[int64][]places.Place
	users      map[string]*User
	nextUserID int64
	failWrites bool
	seedCalls  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{places: map[int64][]places.Place{}, users: map[string]*User{}, nextUserID: 100}
}

func (r *fakeRepo) list(ctx context.Context, userID int64) ([]places.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]places.Place{}, r.places[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (r *fakeRepo) insert(ctx context.Context, userID int64, inputs []placeInput) ([]places.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return nil, errFakeStoreDown
	}
	return r.insertLocked(userID, inputs), nil
}

func (r *fakeRepo) insertLocked(userID int64, inputs []placeInput) []places.Place {
	now := time.Now().UTC()
	out := make([]places.Place, 0, len(inputs))
	for _, in := range inputs {
		p := places.Place{
			ID:          uuid.NewString(),
			UserID:      userID,
			Name:        in.Name,
			City:        in.City,
			Country:     in.Country,
			Category:    in.Category,
			Description: in.Description,
			Visited:     in.Visited,
			MapQuery:    in.MapQuery,
			Lat:         in.Lat,
			Lng:         in.Lng,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		r.places[userID] = append(r.places[userID], p)
		out = append(out, p)
	}
	return out
}

func (r *fakeRepo) find(userID int64, placeID string) int {
	for i, p := range r.places[userID] {
		if p.ID == placeID {
			return i
		}
	}
	return -1
}

func (r *fakeRepo) update(ctx context.Context, userID int64, placeID string, patch placePatch) (*places.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return nil, errFakeStoreDown
	}
	i := r.find(userID, placeID)
	if i < 0 {
		return nil, nil
	}
	p := &r.places[userID][i]
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Name, patch.Name)
	set(&p.City, patch.City)
	set(&p.Country, patch.Country)
	set(&p.Category, patch.Category)
	set(&p.Description, patch.Description)
	set(&p.MapQuery, patch.MapQuery)
	if patch.Visited != nil {
		p.Visited = *patch.Visited
	}
	if patch.ClearLocation {
		p.Lat, p.Lng = nil, nil
	} else if patch.Lat != nil && patch.Lng != nil {
		p.Lat, p.Lng = patch.Lat, patch.Lng
	}
	p.UpdatedAt = time.Now().UTC()
	out := *p
	return &out, nil
}

func (r *fakeRepo) toggleVisited(ctx context.Context, userID int64, placeID string) (*places.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return nil, errFakeStoreDown
	}
	i := r.find(userID, placeID)
	if i < 0 {
		return nil, nil
	}
	r.places[userID][i].Visited = !r.places[userID][i].Visited
	out := r.places[userID][i]
	return &out, nil
}

func (r *fakeRepo) remove(ctx context.Context, userID int64, placeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return false, errFakeStoreDown
	}
	i := r.find(userID, placeID)
	if i < 0 {
		return false, nil
	}
	list := r.places[userID]
	r.places[userID] = append(list[:i:i], list[i+1:]...)
	return true, nil
}

func (r *fakeRepo) upsertUser(ctx context.Context, identity GoogleIdentity) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[identity.Subject]
	if !ok {
		r.nextUserID++
		u = &User{ID: r.nextUserID, GoogleSubject: identity.Subject, CreatedAt: time.Now().UTC()}
		r.users[identity.Subject] = u
	}
	u.Email = identity.Email
	if identity.Name != "" {
		name := identity.Name
		u.DisplayName = &name
	}
	u.UpdatedAt = time.Now().UTC()
	out := *u
	return &out, nil
}

func (r *fakeRepo) seed(ctx context.Context, userID int64, inputs []placeInput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seedCalls++
	for _, u := range r.users {
		if u.ID != userID {
			continue
		}
		if u.SeededAt != nil {
			return false, nil
		}
		now := time.Now().UTC()
		u.SeededAt = &now
	}
	r.insertLocked(userID, inputs)
	return true, nil
}

type recordingMailProvider struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (p *recordingMailProvider) Name() string { return "recording" }

func (p *recordingMailProvider) Send(ctx context.Context, msg mailer.Message) (mailer.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return mailer.SendResult{}, p.err
	}
	p.sent = append(p.sent, msg)
	return mailer.SendResult{ProviderMessageID: "msg-1"}, nil
}

type stubGeocoder struct {
	result *GeocodeResult
	err    error
	calls  int
}

func (g *stubGeocoder) Reverse(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	g.calls++
	return g.result, g.err
}

type testEnv struct {
	app    *App
	router *gin.Engine
	repo   *fakeRepo
	mail   *recordingMailProvider
	geo    *stubGeocoder
}

func newTestServer(t *testing.T) *testEnv {
	return newTestServerWithConfig(t, func(*Config) {})
}

func newTestServerWithConfig(t *testing.T, configure func(*Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &Config{
		Env:               "test",
		PublicBaseURL:     "https://rotambenim.app",
		AppSigningSecret:  "0123456789abcdef",
		GoogleClientID:    "client-id.apps.googleusercontent.com",
		RouteMaxStops:     defaultRouteMaxStops,
		SuggestDebounce:   10 * time.Millisecond,
		DirectionsBaseURL: route.DefaultDirectionsBaseURL,
		PhotoFallbackURLs: []string{"https://img.example/a.jpg", "https://img.example/b.jpg"},
	}
	configure(cfg)

	app := newApp(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := newFakeRepo()
	mail := &recordingMailProvider{}
	geo := &stubGeocoder{}

	app.listPlaces = repo.list
	app.insertPlaces = repo.insert
	app.updatePlace = repo.update
	app.togglePlaceVisited = repo.toggleVisited
	app.deletePlace = repo.remove
	app.upsertGoogleUser = repo.upsertUser
	app.seedUserPlaces = repo.seed
	app.verifyGoogleCredential = func(ctx context.Context, credential string) (*GoogleIdentity, error) {
		return nil, errors.New("no credential configured")
	}
	app.geocoder = geo
	app.photos = photos.NewStaticProvider(cfg.PhotoFallbackURLs)
	app.mailer = mailer.New(mail, "rota@rotambenim.local")
	app.pickPhoto = func(n int) int { return 0 }

	return &testEnv{app: app, router: app.router(), repo: repo, mail: mail, geo: geo}
}

func authenticatedRequest(t *testing.T, app *App, method, target, body string) *http.Request {
	return authenticatedRequestAs(t, app, method, target, body, UserSession{UserID: testUserID, Email: testUserEmail})
}

func authenticatedRequestAs(t *testing.T, app *App, method, target, body string, session UserSession) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := app.createUserSessionToken(session)
	if err != nil {
		t.Fatalf("create session token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: userCookieName, Value: token, Path: "/"})
	return req
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, authenticatedRequest(t, e.app, method, target, body))
	return rec
}

func findResponseCookie(response *http.Response, name string) *http.Cookie {
	for _, cookie := range response.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }
