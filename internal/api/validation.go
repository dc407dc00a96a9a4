package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gorilla/schema"
	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// NearParams are the query parameters of the nearby route.
type NearParams struct {
	Latitude  *float64 `schema:"latitude"`
	Longitude *float64 `schema:"longitude"`
	Radius    int      `schema:"radius"`
	Limit     int      `schema:"limit"`
	Types     []string `schema:"type"`
}

func parseNearParams(values url.Values) (NearParams, error) {
	var p NearParams
	if err := decoder.Decode(&p, values); err != nil {
		return NearParams{}, fmt.Errorf("invalid query parameters: %w", err)
	}
	return p, nil
}

// Query validates the parameters and builds the store query. Radius and
// limit are clamped by the store.
func (p NearParams) Query() (postgres.NearbyQuery, error) {
	if p.Latitude == nil || p.Longitude == nil {
		return postgres.NearbyQuery{}, errors.New("latitude and longitude are required")
	}
	center := geo.Point{Lat: *p.Latitude, Lon: *p.Longitude}
	if !center.Valid() {
		return postgres.NearbyQuery{}, errors.New("coordinates out of range")
	}
	if p.Radius < 0 {
		return postgres.NearbyQuery{}, errors.New("radius must be positive")
	}
	if p.Limit < 0 {
		return postgres.NearbyQuery{}, errors.New("limit cannot be negative")
	}
	return postgres.NearbyQuery{
		Center:       center,
		RadiusMeters: p.Radius,
		Limit:        p.Limit,
		Types:        p.Types,
	}, nil
}

func parseHazardID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid hazard id %q", raw)
	}
	return id, nil
}
