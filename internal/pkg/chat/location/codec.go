// Package location encodes and decodes shared-location payloads carried
// inside plain message text. Recognition on read is deliberately
// heuristic (a map-URL substring): the city/pincode fallback is prose
// by design and never decodes back into a structured value.
package location

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
)

const (
	pin          = "\U0001F4CD"
	mapsBase     = "https://www.google.com/maps"
	mapsMarker   = "google.com/maps"
	preciseLabel = "My precise meetup location"
	spotPrefix   = "Meetup Spot:"
	defaultLabel = "Meetup Point"
)

var urlPattern = regexp.MustCompile(`https://\S+`)

// MapURL builds the canonical maps link for a coordinate pair.
func MapURL(lat, lon float64) string {
	return fmt.Sprintf("%s?q=%s,%s", mapsBase,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64))
}

// EncodeGPS renders a precise GPS capture as message text.
func EncodeGPS(lat, lon float64) string {
	return fmt.Sprintf("%s %s: %s", pin, preciseLabel, MapURL(lat, lon))
}

// EncodeSpot renders a search-picked meetup spot as message text:
// short label on the first line, full address on the second, map link
// on the third.
func EncodeSpot(loc chat.SharedLocation) string {
	mapURL := loc.MapURL
	if mapURL == "" {
		mapURL = MapURL(loc.Latitude, loc.Longitude)
	}
	return fmt.Sprintf("%s %s %s\n%s\n%s", pin, spotPrefix, loc.Label, loc.Address, mapURL)
}

// EncodeCity renders the coarse city/pincode fallback. The result is
// plain prose with no map link and does not decode back.
func EncodeCity(city, pincode string) string {
	if city == "" {
		city = "our city"
	}
	if pincode != "" {
		return fmt.Sprintf("I'm located in %s, %s. We can meet near here.", city, pincode)
	}
	return fmt.Sprintf("I'm located in %s. We can meet near here.", city)
}

// Encode renders loc as message text, choosing the GPS format when no
// label is set and the spot format otherwise.
func Encode(loc chat.SharedLocation) string {
	if loc.Label == "" || loc.Label == preciseLabel {
		if loc.MapURL != "" {
			return fmt.Sprintf("%s %s: %s", pin, preciseLabel, loc.MapURL)
		}
		return EncodeGPS(loc.Latitude, loc.Longitude)
	}
	return EncodeSpot(loc)
}

// Decode recovers a SharedLocation from message text. It reports false
// for anything without a maps link, in which case the caller should
// fall back to plain-text rendering.
func Decode(text string) (chat.SharedLocation, bool) {
	if !strings.Contains(text, mapsMarker) {
		return chat.SharedLocation{}, false
	}
	mapURL := urlPattern.FindString(text)
	if mapURL == "" {
		return chat.SharedLocation{}, false
	}

	loc := chat.SharedLocation{MapURL: mapURL}
	loc.Latitude, loc.Longitude = coords(mapURL)

	lines := strings.Split(text, "\n")
	head := strings.TrimSpace(strings.ReplaceAll(lines[0], pin, ""))
	if i := strings.Index(head, "https://"); i >= 0 {
		head = strings.TrimSpace(head[:i])
	}
	head = strings.TrimSuffix(head, ":")
	if rest, ok := strings.CutPrefix(head, spotPrefix); ok {
		head = strings.TrimSpace(rest)
	}
	if head == "" {
		head = defaultLabel
	}
	loc.Label = head

	// The spot format carries the full address on the middle line.
	if len(lines) >= 3 {
		loc.Address = strings.TrimSpace(lines[1])
	}
	return loc, true
}

func coords(mapURL string) (float64, float64) {
	u, err := url.Parse(mapURL)
	if err != nil {
		return 0, 0
	}
	q := u.Query().Get("q")
	parts := strings.SplitN(q, ",", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0
	}
	return lat, lon
}
