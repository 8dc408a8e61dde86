package main

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
	"github.com/istadmins/RotamBenim-sub000/libs/route"
)

type routeSelection struct {
	tracker *route.Tracker
	store   *places.Store
	cancel  func()
}

// routeRegistry holds one route selection per signed-in user. Selections
// live in memory only and follow the user's place snapshots.
type routeRegistry struct {
	maxStops int

	mu      sync.Mutex
	entries map[int64]*routeSelection
}

func newRouteRegistry(maxStops int) *routeRegistry {
	return &routeRegistry{maxStops: maxStops, entries: map[int64]*routeSelection{}}
}

// tracker returns the user's selection, attached to store so deleted places
// drop out of the route.
func (r *routeRegistry) tracker(userID int64, store *places.Store) *route.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, ok := r.entries[userID]
	if !ok {
		sel = &routeSelection{tracker: route.NewTracker(r.maxStops)}
		r.entries[userID] = sel
	}
	if sel.store != store {
		if sel.cancel != nil {
			sel.cancel()
		}
		tracker := sel.tracker
		sel.store = store
		sel.cancel = store.Subscribe(func(snapshot []places.Place) {
			pruneSelection(tracker, snapshot)
		})
		pruneSelection(tracker, store.All())
	}
	return sel.tracker
}

func pruneSelection(tracker *route.Tracker, snapshot []places.Place) int {
	present := make(map[string]struct{}, len(snapshot))
	for _, p := range snapshot {
		present[p.ID] = struct{}{}
	}
	return tracker.Prune(func(placeID string) bool {
		_, ok := present[placeID]
		return ok
	})
}

func (r *routeRegistry) forget(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sel, ok := r.entries[userID]; ok {
		if sel.cancel != nil {
			sel.cancel()
		}
		delete(r.entries, userID)
	}
}

type routeStopView struct {
	route.Entry
	Place places.Place `json:"place"`
}

type routeView struct {
	Stops    []routeStopView `json:"stops"`
	Count    int             `json:"count"`
	MaxStops int             `json:"maxStops"`
}

func buildRouteView(tracker *route.Tracker, store *places.Store) routeView {
	entries := tracker.Entries()
	view := routeView{Stops: make([]routeStopView, 0, len(entries)), MaxStops: tracker.MaxStops()}
	for _, e := range entries {
		p, ok := store.ByID(e.PlaceID)
		if !ok {
			continue
		}
		view.Stops = append(view.Stops, routeStopView{Entry: e, Place: p})
	}
	view.Count = len(view.Stops)
	return view
}

var (
	errRouteFull     = &apiError{Status: http.StatusConflict, Code: "route_full", Message: "The route already has the maximum number of stops"}
	errRouteTooShort = &apiError{Status: http.StatusConflict, Code: "route_too_short", Message: "Select at least two places to build a route"}
)

// userRoute loads the user's store and route selection together.
func (a *App) userRoute(c *gin.Context) (UserSession, *places.Store, *route.Tracker, bool) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return UserSession{}, nil, nil, false
	}
	store, err := a.userStore(c.Request.Context(), session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return UserSession{}, nil, nil, false
	}
	return session, store, a.routes.tracker(session.UserID, store), true
}

func (a *App) routeHandler(c *gin.Context) {
	_, store, tracker, ok := a.userRoute(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildRouteView(tracker, store))
}

func (a *App) clearRouteHandler(c *gin.Context) {
	_, _, tracker, ok := a.userRoute(c)
	if !ok {
		return
	}
	tracker.Clear()
	c.Status(http.StatusNoContent)
}

// toggleRouteHandler adds or removes a stop. An id that is not in the
// collection leaves the selection unchanged.
func (a *App) toggleRouteHandler(c *gin.Context) {
	session, store, tracker, ok := a.userRoute(c)
	if !ok {
		return
	}

	placeID, valid := placeIDParam(c)
	if !valid {
		c.JSON(http.StatusOK, gin.H{"selected": false, "route": buildRouteView(tracker, store)})
		return
	}
	if _, found := store.ByID(placeID); !found {
		c.JSON(http.StatusOK, gin.H{"selected": false, "route": buildRouteView(tracker, store)})
		return
	}

	selected, err := tracker.Toggle(placeID)
	if errors.Is(err, route.ErrSelectionFull) {
		writeAPIError(c, errRouteFull)
		return
	}
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.log.Debug("route toggled", "user_id", session.UserID, "place_id", placeID, "selected", selected)
	c.JSON(http.StatusOK, gin.H{"selected": selected, "route": buildRouteView(tracker, store)})
}

// directionsLink builds the maps link for the current selection.
func (a *App) directionsLink(tracker *route.Tracker, store *places.Store) ([]string, string, error) {
	stops := route.Stops(tracker.Entries(), store.ByID)
	if len(stops) < 2 {
		return stops, "", errRouteTooShort
	}
	link, err := route.DirectionsURL(a.cfg.DirectionsBaseURL, stops)
	if errors.Is(err, route.ErrTooFewStops) {
		return stops, "", errRouteTooShort
	}
	if err != nil {
		return stops, "", err
	}
	a.metrics.routeLinks.Inc()
	return stops, link, nil
}

func (a *App) routeLinkHandler(c *gin.Context) {
	_, store, tracker, ok := a.userRoute(c)
	if !ok {
		return
	}
	stops, link, err := a.directionsLink(tracker, store)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stops": stops, "url": link})
}

// shareRouteHandler emails the directions link, to the user unless another
// address is given.
func (a *App) shareRouteHandler(c *gin.Context) {
	session, store, tracker, ok := a.userRoute(c)
	if !ok {
		return
	}

	var payload struct {
		To string `json:"to"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid request payload"})
			return
		}
	}
	to := strings.ToLower(strings.TrimSpace(payload.To))
	if to == "" {
		to = session.Email
	}
	if _, err := mail.ParseAddress(to); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_email", Message: "Valid email required"})
		return
	}

	stops, link, err := a.directionsLink(tracker, store)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	if !a.allowShare(session.UserID) {
		writeAPIError(c, errRateLimited)
		return
	}

	msg := a.buildRouteShareEmail(to, session.Email, stops, link)
	result, err := a.mailer.Send(c.Request.Context(), msg)
	if err != nil {
		a.log.Error("failed to send route email", "user_id", session.UserID, "err", err)
		writeAPIError(c, &apiError{Status: http.StatusServiceUnavailable, Code: "mail_unavailable", Message: "Could not send the email, please try again"})
		return
	}

	a.log.Info("route shared", "user_id", session.UserID, "stops", len(stops), "provider", a.mailer.ProviderName(), "message_id", result.ProviderMessageID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "to": to, "url": link})
}
