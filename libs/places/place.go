// Package places holds a user's place collection in memory and derives the
// filtered, country-grouped views shown to them.
package places

import (
	"fmt"
	"strings"
	"time"

	"github.com/istadmins/RotamBenim-sub000/libs/textnorm"
)

// OtherBucket groups places that have no country.
const OtherBucket = "Other"

// Place is one user-curated point of interest.
type Place struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	Visited     bool      `json:"visited"`
	MapQuery    string    `json:"mapQuery,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Bucket returns the grouping key of the place. A blank country and the
// literal country "Other" share OtherBucket, so a bucket never shows under
// two labels.
func (p Place) Bucket() string {
	if p.Country == "" {
		return OtherBucket
	}
	return p.Country
}

// HasCoordinates reports whether both coordinates are set.
func (p Place) HasCoordinates() bool {
	return p.Lat != nil && p.Lng != nil
}

// GeocodeHint returns the explicit map query, the coordinates as "lat,lng",
// or an empty string when neither is known.
func (p Place) GeocodeHint() string {
	if q := strings.TrimSpace(p.MapQuery); q != "" {
		return q
	}
	if p.HasCoordinates() {
		return fmt.Sprintf("%.6f,%.6f", *p.Lat, *p.Lng)
	}
	return ""
}

// Label joins the non-empty name, city and country with ", ".
func (p Place) Label() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{p.Name, p.City, p.Country} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// NameKey is the normalized name used for duplicate detection.
func (p Place) NameKey() string {
	return textnorm.Normalize(p.Name)
}

// HasName reports whether any place in list has the same normalized name,
// ignoring the place with id exceptID.
func HasName(list []Place, name, exceptID string) bool {
	key := textnorm.Normalize(name)
	if key == "" {
		return false
	}
	for _, p := range list {
		if p.ID == exceptID {
			continue
		}
		if p.NameKey() == key {
			return true
		}
	}
	return false
}
