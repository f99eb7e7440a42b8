package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CurrentLocationName is the display name given to a location resolved from device GPS.
const CurrentLocationName = "Current Location"

// Location is a place the user can select, save, and fetch weather for.
type Location struct {
	PlaceID     string  `json:"placeId"`
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Identity returns PlaceID when present, else DisplayName.
func (l Location) Identity() string {
	if l.PlaceID != "" {
		return l.PlaceID
	}
	return l.DisplayName
}

// HasCoordinates reports whether the location carries a usable lat/lon pair.
// 0,0 is treated as unset.
func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lon != 0
}

// FetchKey is the weather lookup key for the location: "lat,lon" when coordinates
// are known, else the display name.
func (l Location) FetchKey() string {
	if l.HasCoordinates() {
		return CoordinateKey(l.Lat, l.Lon)
	}
	return l.DisplayName
}

// Coordinates is a lat/lon pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CoordinateKey formats lat and lon as the normalized "lat,lon" key, using the
// shortest decimal form of each value (21.0285,105.8542).
func CoordinateKey(lat, lon float64) string {
	return FormatCoordinate(lat) + "," + FormatCoordinate(lon)
}

// FormatCoordinate formats a single coordinate the same way CoordinateKey does.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseCoordinateKey parses a "lat,lon" key. ok is false when key is not a
// coordinate pair, which callers treat as a place name.
func ParseCoordinateKey(key string) (Coordinates, bool) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return Coordinates{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lon: lon}, true
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%s,%s", FormatCoordinate(c.Lat), FormatCoordinate(c.Lon))
}

// SameAs reports whether l and o denote the same place: equal place ids when
// both carry one, else equal display name and coordinates.
func (l Location) SameAs(o Location) bool {
	if l.PlaceID != "" && o.PlaceID != "" {
		return l.PlaceID == o.PlaceID
	}
	return l.DisplayName == o.DisplayName && l.Lat == o.Lat && l.Lon == o.Lon
}

// MapURL returns the windy.com weather map centred on lat/lon.
func MapURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.windy.com/?%s,%s,5", FormatCoordinate(lat), FormatCoordinate(lon))
}
