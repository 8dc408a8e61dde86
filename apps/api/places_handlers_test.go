package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
)

type listResponse struct {
	Groups    []places.Group `json:"groups"`
	Countries []string       `json:"countries"`
	Total     int            `json:"total"`
	Shown     int            `json:"shown"`
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeJSON[map[string]string](t, rec)["error"]
}

func createPlace(t *testing.T, env *testEnv, body string) places.Place {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/places", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[places.Place](t, rec)
}

func TestPlacesRequireSession(t *testing.T) {
	env := newTestServer(t)

	for _, target := range []string{"/api/v1/places", "/api/v1/route", "/api/v1/places/export"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestCreatePlaceAppearsInGroupedList(t *testing.T) {
	env := newTestServer(t)

	created := createPlace(t, env, `{"name":"Louvre","city":"Paris","country":"FRANCE","category":"Museum"}`)
	assert.NotEmpty(t, created.ID)
	createPlace(t, env, `{"name":"Ayasofya","city":"İstanbul","country":"TURKEY"}`)
	createPlace(t, env, `{"name":"Kamp yeri"}`)

	rec := env.do(t, http.MethodGet, "/api/v1/places", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[listResponse](t, rec)

	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 3, list.Shown)
	keys := make([]string, 0, len(list.Groups))
	for _, g := range list.Groups {
		keys = append(keys, g.Country)
	}
	assert.Equal(t, []string{"FRANCE", places.OtherBucket, "TURKEY"}, keys)
}

func TestListPlacesAppliesFilter(t *testing.T) {
	env := newTestServer(t)
	createPlace(t, env, `{"name":"Louvre","city":"Paris","country":"FRANCE","visited":true}`)
	createPlace(t, env, `{"name":"Notre-Dame","city":"Paris","country":"FRANCE"}`)
	createPlace(t, env, `{"name":"Kolezyum","city":"Roma","country":"ITALY","visited":true}`)

	rec := env.do(t, http.MethodGet, "/api/v1/places?country=FRANCE&visited=visited", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[listResponse](t, rec)

	require.Len(t, list.Groups, 1)
	require.Len(t, list.Groups[0].Places, 1)
	assert.Equal(t, "Louvre", list.Groups[0].Places[0].Name)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, []string{"FRANCE", "ITALY"}, list.Countries)
}

func TestListPlacesRejectsUnknownVisitedFilter(t *testing.T) {
	env := newTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/v1/places?visited=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_filter", errorCode(t, rec))
}

func TestCreatePlaceValidation(t *testing.T) {
	env := newTestServer(t)
	createPlace(t, env, `{"name":"Eyfel Kulesi","city":"Paris","country":"FRANCE"}`)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"empty name", `{"name":"   "}`, http.StatusBadRequest, "invalid_name"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "invalid_payload"},
		{"duplicate ignoring case and spacing", `{"name":"  eyfel   KULESI "}`, http.StatusConflict, "duplicate_place"},
		{"half coordinates", `{"name":"Somewhere","lat":41.0}`, http.StatusBadRequest, "invalid_location"},
		{"out of range", `{"name":"Somewhere","lat":91,"lng":10}`, http.StatusBadRequest, "invalid_location"},
		{"long name", `{"name":"` + strings.Repeat("a", maxPlaceNameLength+1) + `"}`, http.StatusBadRequest, "invalid_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/places", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
	assert.Len(t, env.repo.places[testUserID], 1)
}

func TestCreatePlaceFillsLocationFromCoordinates(t *testing.T) {
	env := newTestServer(t)
	env.geo.result = &GeocodeResult{City: "Nevşehir", Country: "TURKEY"}

	created := createPlace(t, env, `{"name":"Balon turu","lat":38.6431,"lng":34.8289}`)
	assert.Equal(t, "Nevşehir", created.City)
	assert.Equal(t, "TURKEY", created.Country)
	assert.Equal(t, 1, env.geo.calls)

	createPlace(t, env, `{"name":"Peri bacaları","city":"Ürgüp","country":"TURKEY","lat":38.63,"lng":34.91}`)
	assert.Equal(t, 1, env.geo.calls, "complete locations skip the lookup")
}

func TestCreatePlaceStoreFailure(t *testing.T) {
	env := newTestServer(t)
	env.repo.failWrites = true

	rec := env.do(t, http.MethodPost, "/api/v1/places", `{"name":"Louvre"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", errorCode(t, rec))

	env.repo.failWrites = false
	list := decodeJSON[listResponse](t, env.do(t, http.MethodGet, "/api/v1/places", ""))
	assert.Equal(t, 0, list.Total)
}

func TestGetAndUpdatePlace(t *testing.T) {
	env := newTestServer(t)
	louvre := createPlace(t, env, `{"name":"Louvre","city":"Paris"}`)
	createPlace(t, env, `{"name":"Orsay"}`)

	rec := env.do(t, http.MethodGet, "/api/v1/places/"+louvre.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Louvre", decodeJSON[places.Place](t, rec).Name)

	rec = env.do(t, http.MethodPatch, "/api/v1/places/"+louvre.ID, `{"country":"FRANCE","description":"Mona Lisa"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeJSON[places.Place](t, rec)
	assert.Equal(t, "FRANCE", updated.Country)
	assert.Equal(t, "Paris", updated.City)

	rec = env.do(t, http.MethodPatch, "/api/v1/places/"+louvre.ID, `{"name":"orsay"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/places/"+louvre.ID, `{"name":"LOUVRE"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "renaming to its own name is allowed")
}

func TestMissingPlaceIDs(t *testing.T) {
	env := newTestServer(t)
	missing := "7d0e1c3a-4b5f-4c6d-8e9f-0a1b2c3d4e5f"

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/places/"+missing, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/places/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/v1/places/"+missing, `{"city":"x"}`).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/places/"+missing, "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/places/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/places/"+missing+"/visited", "").Code)
}

func TestToggleVisitedAndDelete(t *testing.T) {
	env := newTestServer(t)
	p := createPlace(t, env, `{"name":"Pamukkale","country":"TURKEY"}`)

	rec := env.do(t, http.MethodPost, "/api/v1/places/"+p.ID+"/visited", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[places.Place](t, rec).Visited)

	list := decodeJSON[listResponse](t, env.do(t, http.MethodGet, "/api/v1/places?visited=notvisited", ""))
	assert.Equal(t, 0, list.Shown)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/places/"+p.ID, "").Code)
	list = decodeJSON[listResponse](t, env.do(t, http.MethodGet, "/api/v1/places", ""))
	assert.Equal(t, 0, list.Total)
}

func TestImportBundleSkipsExistingNames(t *testing.T) {
	env := newTestServer(t)
	createPlace(t, env, `{"name":"louvre"}`)

	rec := env.do(t, http.MethodPost, "/api/v1/places/bundles/france", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON[map[string]any](t, rec)
	bundle := gazetteerBundle(gazetteerEntries, "FRANCE")
	assert.EqualValues(t, len(bundle)-1, body["added"])
	assert.EqualValues(t, 1, body["skipped"])

	rec = env.do(t, http.MethodPost, "/api/v1/places/bundles/FRANCE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeJSON[map[string]any](t, rec)["added"])

	rec = env.do(t, http.MethodPost, "/api/v1/places/bundles/ATLANTIS", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_country", errorCode(t, rec))
}

func TestWriteRateLimit(t *testing.T) {
	env := newTestServer(t)
	for i := 0; i < writeRateLimitRequests; i++ {
		require.True(t, env.app.allowWrite(testUserID))
	}
	rec := env.do(t, http.MethodPost, "/api/v1/places", `{"name":"One too many"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestBackfillPlaceLocations(t *testing.T) {
	env := newTestServer(t)
	env.geo.result = &GeocodeResult{City: "Roma", Country: "ITALY"}

	var filled []string
	pending := []places.Place{
		{ID: "a", Name: "Pantheon", Lat: floatPtr(41.8986), Lng: floatPtr(12.4769)},
		{ID: "b", Name: "Kolezyum", City: "Roma", Country: "ITALY", Lat: floatPtr(41.89), Lng: floatPtr(12.49)},
	}
	count, err := env.app.backfillLocations(t.Context(), pending, func(id, city, country string) error {
		filled = append(filled, id+":"+city+":"+country)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"a:Roma:ITALY"}, filled)
}

func TestBuildPlaceUpdateQuery(t *testing.T) {
	name := "Louvre"
	visited := true
	tests := []struct {
		name     string
		patch    placePatch
		wantSQL  []string
		wantArgs []any
	}{
		{
			name:     "name and visited",
			patch:    placePatch{Name: &name, Visited: &visited},
			wantSQL:  []string{"name = $1", "visited = $2", "updated_at = NOW()", "WHERE id = $3 AND user_id = $4"},
			wantArgs: []any{"Louvre", true, "p1", int64(7)},
		},
		{
			name:     "set location",
			patch:    placePatch{Lat: floatPtr(48.86), Lng: floatPtr(2.33)},
			wantSQL:  []string{"lat = $1", "lng = $2", "WHERE id = $3 AND user_id = $4"},
			wantArgs: []any{48.86, 2.33, "p1", int64(7)},
		},
		{
			name:     "clear location wins",
			patch:    placePatch{Lat: floatPtr(48.86), Lng: floatPtr(2.33), ClearLocation: true},
			wantSQL:  []string{"lat = NULL", "lng = NULL", "WHERE id = $1 AND user_id = $2"},
			wantArgs: []any{"p1", int64(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := buildPlaceUpdateQuery(7, "p1", tt.patch)
			for _, piece := range tt.wantSQL {
				if !strings.Contains(gotSQL, piece) {
					t.Fatalf("expected SQL to contain %q, got: %s", piece, gotSQL)
				}
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("unexpected arg count: got %d want %d", len(gotArgs), len(tt.wantArgs))
			}
			for i := range tt.wantArgs {
				if gotArgs[i] != tt.wantArgs[i] {
					t.Fatalf("arg %d mismatch: got %#v want %#v", i, gotArgs[i], tt.wantArgs[i])
				}
			}
		})
	}
}
