// Package postgres is the PostgreSQL hazard store: schema bootstrap,
// including the change trigger the listener subscribes to, and the
// synchronous lookups used by the REST routes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/saferoute/hazardwatch/internal/geo"
)

// ErrNotFound is returned when no hazard has the requested id.
var ErrNotFound = errors.New("hazard not found")

// Hazard is one row of the hazards table.
type Hazard struct {
	ID             int64      `db:"id" json:"id"`
	UserID         *int64     `db:"user_id" json:"userId,omitempty"`
	HazardType     string     `db:"hazard_type" json:"hazardType"`
	Severity       string     `db:"severity" json:"severity"`
	Description    string     `db:"description" json:"description"`
	Latitude       float64    `db:"latitude" json:"latitude"`
	Longitude      float64    `db:"longitude" json:"longitude"`
	Borough        *string    `db:"borough" json:"borough,omitempty"`
	AffectsTraffic bool       `db:"affects_traffic" json:"affectsTraffic"`
	WeatherRelated bool       `db:"weather_related" json:"weatherRelated"`
	PriorityLevel  int        `db:"priority_level" json:"priorityLevel"`
	Status         string     `db:"status" json:"status"`
	IsResolved     bool       `db:"is_resolved" json:"isResolved"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// NearbyHazard is a Hazard with its distance from the query point.
type NearbyHazard struct {
	Hazard
	DistanceMeters float64 `db:"distance_meters" json:"distanceMeters"`
}

// NearbyQuery selects active hazards around a point.
type NearbyQuery struct {
	Center       geo.Point
	RadiusMeters int
	Limit        int
	// Types restricts hazard_type when non-empty.
	Types []string
}

// Query limits.
const (
	DefaultNearbyRadius = 2000
	DefaultNearbyLimit  = 50
	MaxNearbyLimit      = 500
	MinNearbyRadius     = 100
	MaxNearbyRadius     = 50000
)

const hazardColumns = `id, user_id, hazard_type, severity, description, latitude, longitude,
       borough, affects_traffic, weather_related, priority_level, status, is_resolved,
       created_at, updated_at, resolved_at`

// Store reads hazards from PostgreSQL.
type Store struct {
	db           *sqlx.DB
	channel      string
	queryTimeout time.Duration
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(db, cfg), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sqlx.DB, cfg Config) *Store {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Store{db: db, channel: channel, queryTimeout: cfg.QueryTimeout}
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Get returns the hazard with id.
func (s *Store) Get(ctx context.Context, id int64) (*Hazard, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var h Hazard
	err := s.db.GetContext(ctx, &h, `SELECT `+hazardColumns+` FROM hazards WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Nearby returns active hazards within q.RadiusMeters of q.Center, most
// urgent first, then nearest.
func (s *Store) Nearby(ctx context.Context, q NearbyQuery) ([]NearbyHazard, error) {
	q = normalizeNearby(q)
	if !q.Center.Valid() {
		return nil, errors.New("center coordinates out of range")
	}
	minLat, maxLat, minLon, maxLon := boundingBox(q.Center, float64(q.RadiusMeters))

	var types interface{}
	if len(q.Types) > 0 {
		types = pq.Array(q.Types)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := []NearbyHazard{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+hazardColumns+`, distance_meters
		FROM (
			SELECT h.*,
			       2 * 6371000 * ATAN2(SQRT(c.a), SQRT(1 - c.a)) AS distance_meters
			FROM hazards h,
			LATERAL (
				SELECT LEAST(1, GREATEST(0,
					POWER(SIN(RADIANS(h.latitude - $1) / 2), 2) +
					COS(RADIANS($1)) * COS(RADIANS(h.latitude)) *
					POWER(SIN(RADIANS(h.longitude - $2) / 2), 2))) AS a
			) c
			WHERE h.status = 'active'
			  AND h.latitude BETWEEN $3 AND $4
			  AND h.longitude BETWEEN $5 AND $6
			  AND ($7::text[] IS NULL OR h.hazard_type = ANY($7::text[]))
		) nearby
		WHERE distance_meters <= $8
		ORDER BY priority_level DESC, distance_meters ASC
		LIMIT $9
	`, q.Center.Lat, q.Center.Lon, minLat, maxLat, minLon, maxLon, types, q.RadiusMeters, q.Limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Normalized returns q with defaults applied and radius and limit clamped,
// as Nearby will run it.
func (q NearbyQuery) Normalized() NearbyQuery {
	return normalizeNearby(q)
}

func normalizeNearby(q NearbyQuery) NearbyQuery {
	if q.RadiusMeters == 0 {
		q.RadiusMeters = DefaultNearbyRadius
	}
	q.RadiusMeters = min(max(q.RadiusMeters, MinNearbyRadius), MaxNearbyRadius)
	if q.Limit <= 0 {
		q.Limit = DefaultNearbyLimit
	}
	q.Limit = min(q.Limit, MaxNearbyLimit)
	return q
}

// boundingBox returns a lat/lon box containing every point within radius
// meters of c, used to narrow the scan before the exact distance test.
func boundingBox(c geo.Point, radius float64) (minLat, maxLat, minLon, maxLon float64) {
	const metersPerDegree = math.Pi * geo.EarthRadiusMeters / 180
	dLat := radius / metersPerDegree
	minLat = math.Max(-90, c.Lat-dLat)
	maxLat = math.Min(90, c.Lat+dLat)

	cosLat := math.Cos(c.Lat * math.Pi / 180)
	if maxLat >= 90 || minLat <= -90 || cosLat < 1e-6 {
		return minLat, maxLat, -180, 180
	}
	dLon := radius / (metersPerDegree * cosLat)
	if dLon >= 180 {
		return minLat, maxLat, -180, 180
	}
	minLon = c.Lon - dLon
	maxLon = c.Lon + dLon
	if minLon < -180 || maxLon > 180 {
		// The box crosses the antimeridian; fall back to the full band.
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLon, maxLon
}
