package api

import (
	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
)

// Envelope wraps every successful response.
type Envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type NearResponse struct {
	Hazards        []NearbyHazard `json:"hazards"`
	SearchLocation geo.Point      `json:"searchLocation"`
	RadiusMeters   int            `json:"radiusMeters"`
}

// NearbyHazard is a nearby row with its distance rounded to whole meters.
type NearbyHazard struct {
	postgres.Hazard
	DistanceMeters int `json:"distanceMeters"`
}

type HazardResponse struct {
	Hazard *postgres.Hazard `json:"hazard"`
}
