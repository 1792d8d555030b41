// Package mapslink builds deep links that open turn-by-turn directions in
// an external map application.
package mapslink

import (
	"net/url"
	"strconv"
	"strings"
)

type Mode string

const (
	Driving   Mode = "driving"
	Walking   Mode = "walking"
	Bicycling Mode = "bicycling"
	Transit   Mode = "transit"
)

const baseURL = "https://www.google.com/maps/dir/?api=1"

// BuildURL returns the directions link from start to end. An empty mode
// means driving. Coordinates use the shortest exact decimal form.
func BuildURL(startLat, startLon, endLat, endLon float64, mode Mode) string {
	if mode == "" {
		mode = Driving
	}
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("&origin=")
	b.WriteString(pair(startLat, startLon))
	b.WriteString("&destination=")
	b.WriteString(pair(endLat, endLon))
	b.WriteString("&travelmode=")
	b.WriteString(url.QueryEscape(string(mode)))
	return b.String()
}

func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Driving, true
	case Driving, Walking, Bicycling, Transit:
		return m, true
	default:
		return "", false
	}
}

func pair(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}
