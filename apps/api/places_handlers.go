package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
	"github.com/istadmins/RotamBenim-sub000/libs/textnorm"
)

type placeInput struct {
	Name        string
	City        string
	Country     string
	Category    string
	Description string
	Visited     bool
	MapQuery    string
	Lat         *float64
	Lng         *float64
}

type placePatch struct {
	Name          *string
	City          *string
	Country       *string
	Category      *string
	Description   *string
	Visited       *bool
	MapQuery      *string
	Lat           *float64
	Lng           *float64
	ClearLocation bool
}

type createPlacePayload struct {
	Name        string   `json:"name"`
	City        string   `json:"city"`
	Country     string   `json:"country"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Visited     bool     `json:"visited"`
	MapQuery    string   `json:"mapQuery"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

type updatePlacePayload struct {
	Name          *string  `json:"name"`
	City          *string  `json:"city"`
	Country       *string  `json:"country"`
	Category      *string  `json:"category"`
	Description   *string  `json:"description"`
	Visited       *bool    `json:"visited"`
	MapQuery      *string  `json:"mapQuery"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	ClearLocation bool     `json:"clearLocation"`
}

var (
	errInvalidPlaceName = &apiError{Status: http.StatusBadRequest, Code: "invalid_name", Message: "Place name is required"}
	errDuplicatePlace   = &apiError{Status: http.StatusConflict, Code: "duplicate_place", Message: "A place with this name already exists"}
	errPlaceNotFound    = &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Place not found"}
	errStoreUnavailable = &apiError{Status: http.StatusServiceUnavailable, Code: "store_unavailable", Message: "Could not save your change, please try again"}
	errLoadUnavailable  = &apiError{Status: http.StatusServiceUnavailable, Code: "store_unavailable", Message: "Could not load your places, please try again"}
)

func (p createPlacePayload) toInput() placeInput {
	return placeInput{
		Name:        strings.TrimSpace(p.Name),
		City:        strings.TrimSpace(p.City),
		Country:     strings.TrimSpace(p.Country),
		Category:    strings.TrimSpace(p.Category),
		Description: strings.TrimSpace(p.Description),
		Visited:     p.Visited,
		MapQuery:    strings.TrimSpace(p.MapQuery),
		Lat:         p.Lat,
		Lng:         p.Lng,
	}
}

func (p updatePlacePayload) toPatch() placePatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	return placePatch{
		Name:          trim(p.Name),
		City:          trim(p.City),
		Country:       trim(p.Country),
		Category:      trim(p.Category),
		Description:   trim(p.Description),
		Visited:       p.Visited,
		MapQuery:      trim(p.MapQuery),
		Lat:           p.Lat,
		Lng:           p.Lng,
		ClearLocation: p.ClearLocation,
	}
}

func validatePlaceName(name string) error {
	if name == "" {
		return errInvalidPlaceName
	}
	if utf8.RuneCountInString(name) > maxPlaceNameLength {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_name", Message: fmt.Sprintf("Place name must be at most %d characters", maxPlaceNameLength)}
	}
	return nil
}

func validatePlaceText(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: fmt.Sprintf("%s must be at most %d characters", field, limit)}
	}
	return nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_location", Message: "Latitude and longitude must be given together"}
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_location", Message: "Coordinates are out of range"}
	}
	return nil
}

func validatePlaceInput(in placeInput) error {
	if err := validatePlaceName(in.Name); err != nil {
		return err
	}
	for _, f := range []struct {
		field, value string
	}{{"city", in.City}, {"country", in.Country}, {"category", in.Category}, {"mapQuery", in.MapQuery}} {
		if err := validatePlaceText(f.field, f.value, maxPlaceFieldLength); err != nil {
			return err
		}
	}
	if err := validatePlaceText("description", in.Description, maxPlaceDescriptionLength); err != nil {
		return err
	}
	return validateCoordinates(in.Lat, in.Lng)
}

func validatePlacePatch(patch placePatch) error {
	if patch.Name != nil {
		if err := validatePlaceName(*patch.Name); err != nil {
			return err
		}
	}
	for field, value := range map[string]*string{"city": patch.City, "country": patch.Country, "category": patch.Category, "mapQuery": patch.MapQuery} {
		if value == nil {
			continue
		}
		if err := validatePlaceText(field, *value, maxPlaceFieldLength); err != nil {
			return err
		}
	}
	if patch.Description != nil {
		if err := validatePlaceText("description", *patch.Description, maxPlaceDescriptionLength); err != nil {
			return err
		}
	}
	if patch.ClearLocation {
		return nil
	}
	return validateCoordinates(patch.Lat, patch.Lng)
}

// placeIDParam returns the :id parameter when it is a well-formed place id.
func placeIDParam(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// userStore returns the signed-in user's place store.
func (a *App) userStore(ctx context.Context, userID int64) (*places.Store, error) {
	store, err := a.hub.Store(ctx, userID)
	if err != nil {
		a.log.Error("failed to load places", "user_id", userID, "err", err)
		a.metrics.snapshotRefreshes.WithLabelValues("error").Inc()
		return nil, errLoadUnavailable
	}
	return store, nil
}

// sweepIdleUsers releases the place stores and route selections of users who
// have no open websocket and made no request within userStateIdleTimeout.
func (a *App) sweepIdleUsers(now time.Time) int {
	evicted := a.hub.Sweep(userStateIdleTimeout, now)
	for _, userID := range evicted {
		a.routes.forget(userID)
	}
	if len(evicted) > 0 {
		a.log.Info("released idle user state", "users", len(evicted))
	}
	return len(evicted)
}

// refreshPlaces reloads the user's snapshot after a write. A failure is only
// logged; the change notification will deliver the snapshot later.
func (a *App) refreshPlaces(ctx context.Context, userID int64) {
	if err := a.hub.Refresh(ctx, userID); err != nil {
		a.log.Warn("snapshot refresh after write failed", "user_id", userID, "err", err)
		a.metrics.snapshotRefreshes.WithLabelValues("error").Inc()
		return
	}
	a.metrics.snapshotRefreshes.WithLabelValues("write").Inc()
}

// fillLocationFromCoordinates completes a missing city or country by reverse
// geocoding. Lookup failures leave the input untouched.
func (a *App) fillLocationFromCoordinates(ctx context.Context, in *placeInput) {
	if a.geocoder == nil || in.Lat == nil || in.Lng == nil {
		return
	}
	if in.City != "" && in.Country != "" {
		return
	}

	geoCtx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	res, err := a.geocoder.Reverse(geoCtx, *in.Lat, *in.Lng)
	if err != nil {
		a.log.Warn("reverse geocoding failed", "lat", *in.Lat, "lng", *in.Lng, "err", err)
		return
	}
	if res == nil {
		return
	}
	if in.City == "" {
		in.City = res.City
	}
	if in.Country == "" {
		in.Country = res.Country
	}
}

func (a *App) listPlacesHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	filter, err := places.ParseFilterState(c.Query("country"), c.Query("visited"))
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_filter", Message: "visited must be one of all, visited, notvisited"})
		return
	}

	store, err := a.userStore(c.Request.Context(), session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	all := store.All()
	groups := places.Groups(all, filter)
	shown := 0
	for _, g := range groups {
		shown += len(g.Places)
	}

	c.JSON(http.StatusOK, gin.H{
		"filter":    filter,
		"groups":    groups,
		"countries": places.Countries(all),
		"total":     len(all),
		"shown":     shown,
	})
}

func (a *App) getPlaceHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		writeAPIError(c, errPlaceNotFound)
		return
	}

	store, err := a.userStore(c.Request.Context(), session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	p, found := store.ByID(placeID)
	if !found {
		writeAPIError(c, errPlaceNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *App) createPlaceHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	var payload createPlacePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid request payload"})
		return
	}
	in := payload.toInput()
	if err := validatePlaceInput(in); err != nil {
		writeAPIError(c, err)
		return
	}
	if !a.allowWrite(session.UserID) {
		writeAPIError(c, errRateLimited)
		return
	}

	ctx := c.Request.Context()
	store, err := a.userStore(ctx, session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if places.HasName(store.All(), in.Name, "") {
		writeAPIError(c, errDuplicatePlace)
		return
	}

	a.fillLocationFromCoordinates(ctx, &in)

	inserted, err := a.insertPlaces(ctx, session.UserID, []placeInput{in})
	if err != nil || len(inserted) != 1 {
		a.log.Error("failed to insert place", "user_id", session.UserID, "err", err)
		writeAPIError(c, errStoreUnavailable)
		return
	}
	a.refreshPlaces(ctx, session.UserID)

	a.log.Info("place created", "user_id", session.UserID, "place_id", inserted[0].ID)
	c.JSON(http.StatusCreated, inserted[0])
}

func (a *App) updatePlaceHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		writeAPIError(c, errPlaceNotFound)
		return
	}

	var payload updatePlacePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid request payload"})
		return
	}
	patch := payload.toPatch()
	if err := validatePlacePatch(patch); err != nil {
		writeAPIError(c, err)
		return
	}

	ctx := c.Request.Context()
	store, err := a.userStore(ctx, session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if _, found := store.ByID(placeID); !found {
		writeAPIError(c, errPlaceNotFound)
		return
	}
	if patch.Name != nil && places.HasName(store.All(), *patch.Name, placeID) {
		writeAPIError(c, errDuplicatePlace)
		return
	}

	updated, err := a.updatePlace(ctx, session.UserID, placeID, patch)
	if err != nil {
		a.log.Error("failed to update place", "user_id", session.UserID, "place_id", placeID, "err", err)
		writeAPIError(c, errStoreUnavailable)
		return
	}
	a.refreshPlaces(ctx, session.UserID)
	if updated == nil {
		writeAPIError(c, errPlaceNotFound)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// toggleVisitedHandler flips the visited flag. A stale id changes nothing
// and answers 204.
func (a *App) toggleVisitedHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	ctx := c.Request.Context()
	updated, err := a.togglePlaceVisited(ctx, session.UserID, placeID)
	if err != nil {
		a.log.Error("failed to toggle visited", "user_id", session.UserID, "place_id", placeID, "err", err)
		writeAPIError(c, errStoreUnavailable)
		return
	}
	if updated == nil {
		c.Status(http.StatusNoContent)
		return
	}
	a.refreshPlaces(ctx, session.UserID)
	c.JSON(http.StatusOK, updated)
}

func (a *App) deletePlaceHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}
	placeID, ok := placeIDParam(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	ctx := c.Request.Context()
	deleted, err := a.deletePlace(ctx, session.UserID, placeID)
	if err != nil {
		a.log.Error("failed to delete place", "user_id", session.UserID, "place_id", placeID, "err", err)
		writeAPIError(c, errStoreUnavailable)
		return
	}
	if deleted {
		a.refreshPlaces(ctx, session.UserID)
		a.log.Info("place deleted", "user_id", session.UserID, "place_id", placeID)
	}
	c.Status(http.StatusNoContent)
}

// importBundleHandler adds every gazetteer place of a country in one batch,
// skipping names the user already has.
func (a *App) importBundleHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	country := c.Param("country")
	bundle := gazetteerBundle(a.gazetteer, country)
	if len(bundle) == 0 {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "unknown_country", Message: "No places are known for this country"})
		return
	}
	if !a.allowWrite(session.UserID) {
		writeAPIError(c, errRateLimited)
		return
	}

	ctx := c.Request.Context()
	store, err := a.userStore(ctx, session.UserID)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	existing := map[string]struct{}{}
	for _, p := range store.All() {
		existing[p.NameKey()] = struct{}{}
	}
	inputs := make([]placeInput, 0, len(bundle))
	for _, entry := range bundle {
		key := textnorm.Normalize(entry.Name)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		inputs = append(inputs, placeInputFromEntry(entry))
	}

	if len(inputs) > 0 {
		if _, err := a.insertPlaces(ctx, session.UserID, inputs); err != nil {
			a.log.Error("failed to import country bundle", "user_id", session.UserID, "country", country, "err", err)
			writeAPIError(c, errStoreUnavailable)
			return
		}
		a.refreshPlaces(ctx, session.UserID)
	}

	a.log.Info("country bundle imported", "user_id", session.UserID, "country", country, "added", len(inputs))
	c.JSON(http.StatusOK, gin.H{
		"country": country,
		"added":   len(inputs),
		"skipped": len(bundle) - len(inputs),
	})
}

// backfillPlaceLocations reverse-geocodes places that have coordinates but no
// city or country.
func (a *App) backfillPlaceLocations(ctx context.Context) (int, error) {
	if a.geocoder == nil {
		return 0, errors.New("no geocoder configured")
	}
	pending, err := a.storeListPlacesNeedingLocation(ctx)
	if err != nil {
		return 0, err
	}
	return a.backfillLocations(ctx, pending, func(placeID, city, country string) error {
		return a.storeFillPlaceLocation(ctx, placeID, city, country)
	})
}

func (a *App) backfillLocations(ctx context.Context, pending []places.Place, fill func(placeID, city, country string) error) (int, error) {
	filled := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		in := placeInput{Name: p.Name, City: p.City, Country: p.Country, Lat: p.Lat, Lng: p.Lng}
		a.fillLocationFromCoordinates(ctx, &in)
		if in.City == p.City && in.Country == p.Country {
			continue
		}
		if err := fill(p.ID, in.City, in.Country); err != nil {
			a.log.Error("location backfill failed", "place_id", p.ID, "err", err)
			continue
		}
		filled++
	}
	return filled, nil
}
