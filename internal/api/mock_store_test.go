package api

import (
	"context"

	"github.com/saferoute/hazardwatch/internal/storage/postgres"
	"github.com/stretchr/testify/mock"
)

// MockHazardStore is a mock implementation of HazardStore.
type MockHazardStore struct {
	mock.Mock
}

func (m *MockHazardStore) Get(ctx context.Context, id int64) (*postgres.Hazard, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*postgres.Hazard), args.Error(1)
}

func (m *MockHazardStore) Nearby(ctx context.Context, q postgres.NearbyQuery) ([]postgres.NearbyHazard, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]postgres.NearbyHazard), args.Error(1)
}
