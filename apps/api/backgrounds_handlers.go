package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/istadmins/RotamBenim-sub000/libs/photos"
)

// backgroundHandler returns one decorative photo for the query.
func (a *App) backgroundHandler(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		query = defaultPhotoQuery
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), photoSearchTimeout)
	defer cancel()

	list, err := a.photos.Search(ctx, query)
	if err != nil && !errors.Is(err, photos.ErrNoPhotos) {
		a.log.Warn("photo search failed", "provider", a.photos.Name(), "query", query, "err", err)
		writeAPIError(c, &apiError{Status: http.StatusServiceUnavailable, Code: "photo_unavailable", Message: "Background photos are unavailable right now"})
		return
	}

	photo, err := photos.Pick(list, a.pickPhoto)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "No photo found for this query"})
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, photo)
}
