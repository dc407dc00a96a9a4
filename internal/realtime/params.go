package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"github.com/saferoute/hazardwatch/internal/geo"
)

var paramDecoder = newParamDecoder()

func newParamDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// StreamParams are the query parameters of the stream endpoints.
type StreamParams struct {
	Latitude  *float64 `schema:"latitude"`
	Longitude *float64 `schema:"longitude"`
	Radius    *int     `schema:"radius"`
	Token     string   `schema:"token"`
	Filter    string   `schema:"filter"`
}

// ParseStreamParams decodes the stream query string.
func ParseStreamParams(values url.Values) (StreamParams, error) {
	var p StreamParams
	if err := paramDecoder.Decode(&p, values); err != nil {
		return StreamParams{}, fmt.Errorf("invalid query parameters: %w", err)
	}
	return p, nil
}

// Location returns the subscriber location, or nil when neither coordinate
// was given.
func (p StreamParams) Location() (*geo.Point, error) {
	if p.Latitude == nil && p.Longitude == nil {
		return nil, nil
	}
	if p.Latitude == nil || p.Longitude == nil {
		return nil, errors.New("latitude and longitude must be given together")
	}
	pt := geo.Point{Lat: *p.Latitude, Lon: *p.Longitude}
	if !pt.Valid() {
		return nil, errors.New("coordinates out of range")
	}
	return &pt, nil
}

// RadiusOr returns the requested radius, or def when absent.
func (p StreamParams) RadiusOr(def int) (int, error) {
	if p.Radius == nil {
		return def, nil
	}
	if *p.Radius <= 0 {
		return 0, errors.New("radius must be positive")
	}
	return *p.Radius, nil
}

// bearerToken returns the query token, falling back to an
// "Authorization: Bearer" header.
func bearerToken(r *http.Request, p StreamParams) string {
	if p.Token != "" {
		return p.Token
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
