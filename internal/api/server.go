// Package api serves the read-only hazard REST routes.
package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
)

// HazardStore is the subset of the hazard store the routes read from.
type HazardStore interface {
	Get(ctx context.Context, id int64) (*postgres.Hazard, error)
	Nearby(ctx context.Context, q postgres.NearbyQuery) ([]postgres.NearbyHazard, error)
}

type Server struct {
	store  HazardStore
	logger *slog.Logger
}

func NewServer(store HazardStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  store,
		logger: logger.With("component", "api"),
	}
}

// Routes mounts the hazard routes on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/hazards/near", s.handleNear)
	r.Get("/api/hazards/near/{latitude}/{longitude}", s.handleNear)
	r.Get("/api/hazards/{id}", s.handleGetHazard)
}
