package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/saferoute/hazardwatch/internal/server"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
)

func (s *Server) handleNear(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	// Path form: /near/{latitude}/{longitude}
	if lat := chi.URLParam(r, "latitude"); lat != "" {
		values.Set("latitude", lat)
		values.Set("longitude", chi.URLParam(r, "longitude"))
	}

	params, err := parseNearParams(values)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	q, err := params.Query()
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	rows, err := s.store.Nearby(r.Context(), q)
	if err != nil {
		s.logger.Error("Nearby hazards query failed", "error", err, "request_id", server.GetRequestID(r.Context()))
		server.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	hazards := make([]NearbyHazard, 0, len(rows))
	for _, row := range rows {
		hazards = append(hazards, NearbyHazard{
			Hazard:         row.Hazard,
			DistanceMeters: int(math.Round(row.DistanceMeters)),
		})
	}

	writeJSON(w, http.StatusOK, NearResponse{
		Hazards:        hazards,
		SearchLocation: q.Center,
		RadiusMeters:   q.Normalized().RadiusMeters,
	})
}

func (s *Server) handleGetHazard(w http.ResponseWriter, r *http.Request) {
	id, err := parseHazardID(chi.URLParam(r, "id"))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	h, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			server.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Hazard not found")
			return
		}
		s.logger.Error("Hazard lookup failed", "id", id, "error", err, "request_id", server.GetRequestID(r.Context()))
		server.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, HazardResponse{Hazard: h})
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope[T]{Success: true, Data: data})
}
