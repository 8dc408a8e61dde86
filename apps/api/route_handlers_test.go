package main

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toggleResponse struct {
	Selected bool      `json:"selected"`
	Route    routeView `json:"route"`
}

func toggleStop(t *testing.T, env *testEnv, placeID string) toggleResponse {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/route/toggle/"+placeID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON[toggleResponse](t, rec)
}

func stopOrders(view routeView) map[string]int {
	out := map[string]int{}
	for _, s := range view.Stops {
		out[s.Place.Name] = s.Order
	}
	return out
}

func TestRouteToggleKeepsDenseOrder(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"A"}`)
	b := createPlace(t, env, `{"name":"B"}`)
	c := createPlace(t, env, `{"name":"C"}`)

	toggleStop(t, env, a.ID)
	toggleStop(t, env, b.ID)
	resp := toggleStop(t, env, c.ID)
	assert.True(t, resp.Selected)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, stopOrders(resp.Route))

	resp = toggleStop(t, env, b.ID)
	assert.False(t, resp.Selected)
	assert.Equal(t, map[string]int{"A": 1, "C": 2}, stopOrders(resp.Route))

	rec := env.do(t, http.MethodGet, "/api/v1/route", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[routeView](t, rec)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, defaultRouteMaxStops, view.MaxStops)
}

func TestRouteLinkUsesHintsAndLabels(t *testing.T) {
	env := newTestServer(t)
	eyfel := createPlace(t, env, `{"name":"Eyfel Kulesi","city":"Paris","country":"FRANCE","mapQuery":"Eyfel Kulesi, Paris"}`)
	louvre := createPlace(t, env, `{"name":"Louvre","city":"Paris","country":"FRANCE"}`)

	toggleStop(t, env, eyfel.ID)
	toggleStop(t, env, louvre.ID)

	rec := env.do(t, http.MethodGet, "/api/v1/route/link", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON[struct {
		Stops []string `json:"stops"`
		URL   string   `json:"url"`
	}](t, rec)
	assert.Equal(t, []string{"Eyfel Kulesi, Paris", "Louvre, Paris, FRANCE"}, body.Stops)
	assert.Equal(t, "https://www.google.com/maps/dir/Eyfel%20Kulesi%2C%20Paris/Louvre%2C%20Paris%2C%20FRANCE", body.URL)
}

func TestRouteLinkNeedsTwoStops(t *testing.T) {
	env := newTestServer(t)
	p := createPlace(t, env, `{"name":"Pamukkale"}`)
	toggleStop(t, env, p.ID)

	rec := env.do(t, http.MethodGet, "/api/v1/route/link", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "route_too_short", errorCode(t, rec))
}

func TestRouteToggleRejectsWhenFull(t *testing.T) {
	env := newTestServerWithConfig(t, func(cfg *Config) { cfg.RouteMaxStops = 2 })
	a := createPlace(t, env, `{"name":"A"}`)
	b := createPlace(t, env, `{"name":"B"}`)
	c := createPlace(t, env, `{"name":"C"}`)

	toggleStop(t, env, a.ID)
	toggleStop(t, env, b.ID)
	rec := env.do(t, http.MethodPost, "/api/v1/route/toggle/"+c.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "route_full", errorCode(t, rec))

	resp := toggleStop(t, env, a.ID)
	assert.False(t, resp.Selected)
	resp = toggleStop(t, env, c.ID)
	assert.True(t, resp.Selected)
	assert.Equal(t, map[string]int{"B": 1, "C": 2}, stopOrders(resp.Route))
}

func TestRouteToggleUnknownPlaceIsNoOp(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"A"}`)
	toggleStop(t, env, a.ID)

	resp := toggleStop(t, env, "7d0e1c3a-4b5f-4c6d-8e9f-0a1b2c3d4e5f")
	assert.False(t, resp.Selected)
	assert.Equal(t, 1, resp.Route.Count)

	resp = toggleStop(t, env, "nope")
	assert.Equal(t, 1, resp.Route.Count)
}

func TestDeletedPlaceLeavesRoute(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"A"}`)
	b := createPlace(t, env, `{"name":"B"}`)
	c := createPlace(t, env, `{"name":"C"}`)
	toggleStop(t, env, a.ID)
	toggleStop(t, env, b.ID)
	toggleStop(t, env, c.ID)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/places/"+a.ID, "").Code)

	view := decodeJSON[routeView](t, env.do(t, http.MethodGet, "/api/v1/route", ""))
	assert.Equal(t, map[string]int{"B": 1, "C": 2}, stopOrders(view))
}

func TestClearRoute(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"A"}`)
	toggleStop(t, env, a.ID)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/route", "").Code)
	view := decodeJSON[routeView](t, env.do(t, http.MethodGet, "/api/v1/route", ""))
	assert.Equal(t, 0, view.Count)
}

func TestShareRouteSendsEmail(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"Ayasofya","city":"İstanbul","country":"TURKEY"}`)
	b := createPlace(t, env, `{"name":"Topkapı Sarayı","city":"İstanbul","country":"TURKEY"}`)
	toggleStop(t, env, a.ID)
	toggleStop(t, env, b.ID)

	rec := env.do(t, http.MethodPost, "/api/v1/route/share", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.mail.sent, 1)
	msg := env.mail.sent[0]
	assert.Equal(t, []string{testUserEmail}, msg.To)
	assert.Empty(t, msg.ReplyTo)
	assert.Contains(t, msg.Text, "1. Ayasofya, İstanbul, TURKEY")
	assert.Contains(t, msg.HTML, "https://www.google.com/maps/dir/")

	rec = env.do(t, http.MethodPost, "/api/v1/route/share", `{"to":"Arkadas@Example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"arkadas@example.com"}, env.mail.sent[1].To)
	assert.Equal(t, testUserEmail, env.mail.sent[1].ReplyTo)

	rec = env.do(t, http.MethodPost, "/api/v1/route/share", `{"to":"not an email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareRouteMailFailure(t *testing.T) {
	env := newTestServer(t)
	a := createPlace(t, env, `{"name":"A"}`)
	b := createPlace(t, env, `{"name":"B"}`)
	toggleStop(t, env, a.ID)
	toggleStop(t, env, b.ID)
	env.mail.err = errors.New("smtp down")

	rec := env.do(t, http.MethodPost, "/api/v1/route/share", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "mail_unavailable", errorCode(t, rec))
}

func TestBuildRouteShareEmailEscapesStops(t *testing.T) {
	env := newTestServer(t)
	msg := env.app.buildRouteShareEmail("a@example.com", "b@example.com", []string{"<script>", "Louvre"}, "https://maps.example/dir/x")

	assert.False(t, strings.Contains(msg.HTML, "<script>"))
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
	assert.Contains(t, msg.Subject, "2")
	assert.Equal(t, "b@example.com", msg.ReplyTo)
}
