package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/istadmins/RotamBenim-sub000/libs/suggest"
)

// gazetteerEntries is the static list of well-known places offered as
// suggestions and as country bundles. Countries are uppercase English names.
var gazetteerEntries = []suggest.Entry{
	{Name: "Paris", City: "Paris", Country: "FRANCE", Category: "City"},
	{Name: "Eyfel Kulesi", City: "Paris", Country: "FRANCE", Category: "Landmark", MapQuery: "Eyfel Kulesi, Paris"},
	{Name: "Louvre", City: "Paris", Country: "FRANCE", Category: "Museum"},
	{Name: "Notre-Dame", City: "Paris", Country: "FRANCE", Category: "Church"},
	{Name: "Mont Saint-Michel", City: "Normandy", Country: "FRANCE", Category: "Landmark"},
	{Name: "Versay Sarayı", City: "Versailles", Country: "FRANCE", Category: "Palace", MapQuery: "Château de Versailles"},
	{Name: "Nice", City: "Nice", Country: "FRANCE", Category: "City"},
	{Name: "Lyon", City: "Lyon", Country: "FRANCE", Category: "City"},

	{Name: "Roma", City: "Roma", Country: "ITALY", Category: "City"},
	{Name: "Kolezyum", City: "Roma", Country: "ITALY", Category: "Landmark", MapQuery: "Colosseum, Rome"},
	{Name: "Trevi Çeşmesi", City: "Roma", Country: "ITALY", Category: "Landmark", MapQuery: "Trevi Fountain, Rome"},
	{Name: "Vatikan Müzeleri", City: "Vatikan", Country: "ITALY", Category: "Museum", MapQuery: "Vatican Museums"},
	{Name: "Venedik", City: "Venedik", Country: "ITALY", Category: "City", MapQuery: "Venice, Italy"},
	{Name: "Floransa", City: "Floransa", Country: "ITALY", Category: "City", MapQuery: "Florence, Italy"},
	{Name: "Pisa Kulesi", City: "Pisa", Country: "ITALY", Category: "Landmark", MapQuery: "Leaning Tower of Pisa"},
	{Name: "Amalfi Kıyısı", City: "Amalfi", Country: "ITALY", Category: "Nature", MapQuery: "Amalfi Coast"},

	{Name: "Barselona", City: "Barselona", Country: "SPAIN", Category: "City", MapQuery: "Barcelona, Spain"},
	{Name: "Sagrada Familia", City: "Barselona", Country: "SPAIN", Category: "Church"},
	{Name: "Park Güell", City: "Barselona", Country: "SPAIN", Category: "Park"},
	{Name: "Madrid", City: "Madrid", Country: "SPAIN", Category: "City"},
	{Name: "Prado Müzesi", City: "Madrid", Country: "SPAIN", Category: "Museum", MapQuery: "Museo del Prado"},
	{Name: "Elhamra Sarayı", City: "Granada", Country: "SPAIN", Category: "Palace", MapQuery: "Alhambra, Granada"},
	{Name: "Sevilla", City: "Sevilla", Country: "SPAIN", Category: "City"},

	{Name: "İstanbul", City: "İstanbul", Country: "TURKEY", Category: "City"},
	{Name: "Ayasofya", City: "İstanbul", Country: "TURKEY", Category: "Landmark", MapQuery: "Hagia Sophia, Istanbul"},
	{Name: "Topkapı Sarayı", City: "İstanbul", Country: "TURKEY", Category: "Palace"},
	{Name: "Kapadokya", City: "Nevşehir", Country: "TURKEY", Category: "Nature"},
	{Name: "Göreme Açık Hava Müzesi", City: "Nevşehir", Country: "TURKEY", Category: "Museum"},
	{Name: "Pamukkale", City: "Denizli", Country: "TURKEY", Category: "Nature"},
	{Name: "Efes Antik Kenti", City: "İzmir", Country: "TURKEY", Category: "Historic", MapQuery: "Ephesus Ancient City"},
	{Name: "Nemrut Dağı", City: "Adıyaman", Country: "TURKEY", Category: "Historic"},
	{Name: "Sümela Manastırı", City: "Trabzon", Country: "TURKEY", Category: "Historic"},

	{Name: "Londra", City: "Londra", Country: "UNITED KINGDOM", Category: "City", MapQuery: "London, UK"},
	{Name: "British Museum", City: "Londra", Country: "UNITED KINGDOM", Category: "Museum", MapQuery: "British Museum, London"},
	{Name: "Tower Bridge", City: "Londra", Country: "UNITED KINGDOM", Category: "Landmark", MapQuery: "Tower Bridge, London"},
	{Name: "Stonehenge", City: "Amesbury", Country: "UNITED KINGDOM", Category: "Historic"},
	{Name: "Edinburgh Kalesi", City: "Edinburgh", Country: "UNITED KINGDOM", Category: "Castle", MapQuery: "Edinburgh Castle"},

	{Name: "Berlin", City: "Berlin", Country: "GERMANY", Category: "City"},
	{Name: "Brandenburg Kapısı", City: "Berlin", Country: "GERMANY", Category: "Landmark", MapQuery: "Brandenburger Tor"},
	{Name: "Neuschwanstein Şatosu", City: "Schwangau", Country: "GERMANY", Category: "Castle", MapQuery: "Schloss Neuschwanstein"},
	{Name: "Köln Katedrali", City: "Köln", Country: "GERMANY", Category: "Church", MapQuery: "Kölner Dom"},
	{Name: "Münih", City: "Münih", Country: "GERMANY", Category: "City", MapQuery: "München"},

	{Name: "Atina", City: "Atina", Country: "GREECE", Category: "City", MapQuery: "Athens, Greece"},
	{Name: "Akropolis", City: "Atina", Country: "GREECE", Category: "Historic", MapQuery: "Acropolis of Athens"},
	{Name: "Santorini", City: "Santorini", Country: "GREECE", Category: "Island"},
	{Name: "Meteora", City: "Kalambaka", Country: "GREECE", Category: "Historic"},
	{Name: "Delfi", City: "Delfi", Country: "GREECE", Category: "Historic", MapQuery: "Delphi Archaeological Site"},

	{Name: "Amsterdam", City: "Amsterdam", Country: "NETHERLANDS", Category: "City"},
	{Name: "Rijksmuseum", City: "Amsterdam", Country: "NETHERLANDS", Category: "Museum"},
	{Name: "Anne Frank Evi", City: "Amsterdam", Country: "NETHERLANDS", Category: "Museum", MapQuery: "Anne Frank Huis"},
	{Name: "Kinderdijk", City: "Kinderdijk", Country: "NETHERLANDS", Category: "Landmark"},

	{Name: "Prag", City: "Prag", Country: "CZECHIA", Category: "City", MapQuery: "Prague, Czechia"},
	{Name: "Karlov Köprüsü", City: "Prag", Country: "CZECHIA", Category: "Landmark", MapQuery: "Charles Bridge, Prague"},
	{Name: "Prag Kalesi", City: "Prag", Country: "CZECHIA", Category: "Castle", MapQuery: "Prague Castle"},
	{Name: "Český Krumlov", City: "Český Krumlov", Country: "CZECHIA", Category: "City"},

	{Name: "Viyana", City: "Viyana", Country: "AUSTRIA", Category: "City", MapQuery: "Vienna, Austria"},
	{Name: "Schönbrunn Sarayı", City: "Viyana", Country: "AUSTRIA", Category: "Palace", MapQuery: "Schloss Schönbrunn"},
	{Name: "Hallstatt", City: "Hallstatt", Country: "AUSTRIA", Category: "Village"},
	{Name: "Salzburg", City: "Salzburg", Country: "AUSTRIA", Category: "City"},

	{Name: "Lizbon", City: "Lizbon", Country: "PORTUGAL", Category: "City", MapQuery: "Lisbon, Portugal"},
	{Name: "Belém Kulesi", City: "Lizbon", Country: "PORTUGAL", Category: "Landmark", MapQuery: "Torre de Belém"},
	{Name: "Porto", City: "Porto", Country: "PORTUGAL", Category: "City"},
	{Name: "Sintra", City: "Sintra", Country: "PORTUGAL", Category: "Town"},

	{Name: "Tokyo", City: "Tokyo", Country: "JAPAN", Category: "City"},
	{Name: "Fuji Dağı", City: "Shizuoka", Country: "JAPAN", Category: "Nature", MapQuery: "Mount Fuji"},
	{Name: "Kyoto", City: "Kyoto", Country: "JAPAN", Category: "City"},
	{Name: "Fushimi Inari", City: "Kyoto", Country: "JAPAN", Category: "Shrine", MapQuery: "Fushimi Inari Taisha"},

	{Name: "New York", City: "New York", Country: "UNITED STATES", Category: "City"},
	{Name: "Özgürlük Heykeli", City: "New York", Country: "UNITED STATES", Category: "Landmark", MapQuery: "Statue of Liberty"},
	{Name: "Büyük Kanyon", City: "Arizona", Country: "UNITED STATES", Category: "Nature", MapQuery: "Grand Canyon"},
	{Name: "Golden Gate Köprüsü", City: "San Francisco", Country: "UNITED STATES", Category: "Landmark", MapQuery: "Golden Gate Bridge"},

	{Name: "Machu Picchu", City: "Cusco", Country: "PERU", Category: "Historic"},
	{Name: "Petra", City: "Ma'an", Country: "JORDAN", Category: "Historic"},
	{Name: "Giza Piramitleri", City: "Giza", Country: "EGYPT", Category: "Historic", MapQuery: "Pyramids of Giza"},
}

// seedPlaceNames are added to every new user's collection on first sign-in.
var seedPlaceNames = []string{
	"Eyfel Kulesi",
	"Louvre",
	"Kolezyum",
	"Sagrada Familia",
	"Ayasofya",
	"Kapadokya",
}

func placeInputFromEntry(entry suggest.Entry) placeInput {
	return placeInput{
		Name:     entry.Name,
		City:     entry.City,
		Country:  entry.Country,
		Category: entry.Category,
		MapQuery: entry.MapQuery,
	}
}

func seedPlaceInputs(gazetteer []suggest.Entry) []placeInput {
	byName := make(map[string]suggest.Entry, len(gazetteer))
	for _, entry := range gazetteer {
		byName[entry.Name] = entry
	}
	out := make([]placeInput, 0, len(seedPlaceNames))
	for _, name := range seedPlaceNames {
		if entry, ok := byName[name]; ok {
			out = append(out, placeInputFromEntry(entry))
		}
	}
	return out
}

// gazetteerBundle returns the entries of one country, matched
// case-insensitively since the country arrives through the URL.
func gazetteerBundle(gazetteer []suggest.Entry, country string) []suggest.Entry {
	country = strings.TrimSpace(country)
	if country == "" {
		return nil
	}
	out := make([]suggest.Entry, 0)
	for _, entry := range gazetteer {
		if strings.EqualFold(entry.Country, country) {
			out = append(out, entry)
		}
	}
	return out
}

type countryBundle struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// gazetteerCountries lists each country once in first-seen order.
func gazetteerCountries(gazetteer []suggest.Entry) []countryBundle {
	index := map[string]int{}
	out := make([]countryBundle, 0)
	for _, entry := range gazetteer {
		i, ok := index[entry.Country]
		if !ok {
			index[entry.Country] = len(out)
			out = append(out, countryBundle{Country: entry.Country})
			i = len(out) - 1
		}
		out[i].Count++
	}
	return out
}

func (a *App) gazetteerCountriesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gazetteerCountries(a.gazetteer))
}

func (a *App) suggestionsHandler(c *gin.Context) {
	limit := suggest.DefaultMaxResults
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "limit must be a positive number"})
			return
		}
		limit = min(parsed, suggest.DefaultMaxResults)
	}

	results := suggest.Rank(c.Query("q"), a.gazetteer, limit)
	a.metrics.suggestions.WithLabelValues("http").Inc()
	c.JSON(http.StatusOK, gin.H{"query": c.Query("q"), "suggestions": results})
}
