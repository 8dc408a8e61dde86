package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	"golang.org/x/text/unicode/norm"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
)

const (
	exportFormatCSV     = "csv"
	exportFormatGeoJSON = "geojson"
	exportFormatPDF     = "pdf"
)

var exportContentTypes = map[string]string{
	exportFormatCSV:     "text/csv; charset=utf-8",
	exportFormatGeoJSON: "application/geo+json",
	exportFormatPDF:     "application/pdf",
}

func (a *App) exportPlacesHandler(c *gin.Context) {
	session, err := getUserSession(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if format == "" {
		format = exportFormatCSV
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "unsupported_format", Message: "format must be one of csv, geojson, pdf"})
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
	groups := places.Groups(store.All(), filter)

	now := time.Now().UTC()
	var body []byte
	switch format {
	case exportFormatCSV:
		var out string
		out, err = buildCSV(groups)
		body = []byte(out)
	case exportFormatGeoJSON:
		var out string
		out, err = buildGeoJSON(groups)
		body = []byte(out)
	case exportFormatPDF:
		body, err = buildPDF(groups, now)
	}
	if err != nil {
		a.log.Error("failed to build export", "user_id", session.UserID, "format", format, "err", err)
		writeAPIError(c, err)
		return
	}

	fileName := fmt.Sprintf("rotambenim-places-%s.%s", now.Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	c.Data(http.StatusOK, contentType, body)
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func buildCSV(groups []places.Group) (string, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	headers := []string{"id", "name", "city", "country", "category", "visited", "map_query", "lat", "lng", "description", "created_at"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, group := range groups {
		for _, p := range group.Places {
			row := []string{
				p.ID,
				p.Name,
				p.City,
				p.Country,
				p.Category,
				strconv.FormatBool(p.Visited),
				p.MapQuery,
				formatCoordinate(p.Lat),
				formatCoordinate(p.Lng),
				p.Description,
				p.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := writer.Write(row); err != nil {
				return "", err
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// buildGeoJSON includes only places that carry coordinates.
func buildGeoJSON(groups []places.Group) (string, error) {
	features := make([]map[string]any, 0)
	for _, group := range groups {
		for _, p := range group.Places {
			if !p.HasCoordinates() {
				continue
			}
			features = append(features, map[string]any{
				"type": "Feature",
				"geometry": map[string]any{
					"type":        "Point",
					"coordinates": []float64{*p.Lng, *p.Lat},
				},
				"properties": map[string]any{
					"id":       p.ID,
					"name":     p.Name,
					"city":     p.City,
					"country":  p.Country,
					"category": p.Category,
					"visited":  p.Visited,
				},
			})
		}
	}
	payload := map[string]any{"type": "FeatureCollection", "features": features}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// pdfSafe folds text into what the core fonts can draw: letters outside
// Latin-1 lose their accents, anything else becomes '?'.
func pdfSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x100 {
			b.WriteRune(r)
			continue
		}
		if r == 'ı' {
			b.WriteRune('i')
			continue
		}
		base := '?'
		for _, d := range norm.NFD.String(string(r)) {
			if d < 0x100 && !unicode.Is(unicode.Mn, d) {
				base = d
				break
			}
		}
		b.WriteRune(base)
	}
	return b.String()
}

func buildPDF(groups []places.Group, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(pdfSafe(s)) }

	total, visited := 0, 0
	for _, group := range groups {
		for _, p := range group.Places {
			total++
			if p.Visited {
				visited++
			}
		}
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, "RotamBenim")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", generatedAt.Format("2006-01-02")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Places: %d (visited %d)", total, visited))
	pdf.Ln(10)

	for _, group := range groups {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, text(fmt.Sprintf("%s (%d)", group.Country, len(group.Places))))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, p := range group.Places {
			mark := "[ ]"
			if p.Visited {
				mark = "[x]"
			}
			line := fmt.Sprintf("%s %s", mark, p.Name)
			if p.City != "" {
				line += " - " + p.City
			}
			if p.Category != "" {
				line += " (" + p.Category + ")"
			}
			pdf.Cell(0, 6, text(line))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
