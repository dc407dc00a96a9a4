package services

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saferoute/hazardwatch/internal/api"
	"github.com/saferoute/hazardwatch/internal/changefeed"
	"github.com/saferoute/hazardwatch/internal/changefeed/mongofeed"
	"github.com/saferoute/hazardwatch/internal/changefeed/mqttfeed"
	"github.com/saferoute/hazardwatch/internal/changefeed/natsfeed"
	pgfeed "github.com/saferoute/hazardwatch/internal/changefeed/postgres"
	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/saferoute/hazardwatch/internal/health"
	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/saferoute/hazardwatch/internal/metrics"
	"github.com/saferoute/hazardwatch/internal/realtime"
	"github.com/saferoute/hazardwatch/internal/server"
	"github.com/saferoute/hazardwatch/internal/storage/postgres"
)

var storeFactory = func(ctx context.Context, cfg postgres.Config) (HazardStore, error) {
	store, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

var dialerFactory = newFeedDialer

// newFeedDialer picks the change feed driver named by the config.
func newFeedDialer(cfg *config.Config) (changefeed.Dialer, error) {
	feed := cfg.Feed
	switch feed.Driver {
	case config.DriverPostgres:
		return pgfeed.NewDialer(cfg.Database.DSN, cfg.Database.Channel, feed.ConnectTimeout), nil
	case config.DriverNATS:
		return natsfeed.NewDialer(feed.NATS.URL, feed.NATS.Subject, feed.ConnectTimeout), nil
	case config.DriverMongo:
		return mongofeed.NewDialer(feed.Mongo.URI, feed.Mongo.Database, feed.Mongo.Collection, feed.ConnectTimeout), nil
	case config.DriverMQTT:
		return mqttfeed.NewDialer(feed.MQTT.Broker, feed.MQTT.Topic, feed.ConnectTimeout), nil
	default:
		return nil, fmt.Errorf("unknown feed driver %q", feed.Driver)
	}
}

// Init builds every component. Nothing runs until Start.
func (m *Manager) Init(ctx context.Context) error {
	metrics.Register()

	if err := m.initStore(ctx); err != nil {
		return err
	}

	verifier, err := identity.NewTokenService(m.cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	m.verifier = verifier

	if err := m.initFeed(); err != nil {
		return err
	}

	m.registry = realtime.NewRegistry()
	m.stream = realtime.NewHandler(m.cfg.Stream, m.registry, m.verifier, m.logger)
	m.broadcaster = realtime.NewBroadcaster(m.registry, m.logger)

	m.health = health.NewChecker(m.logger)
	m.health.Register("database", health.PingCheck(m.store))
	m.health.Register("changefeed", health.FeedCheck(m.listener.State))
	m.health.SetSessionCounter(m.registry.Len)

	m.initServer()
	return nil
}

func (m *Manager) initStore(ctx context.Context) error {
	store, err := storeFactory(ctx, m.cfg.Database)
	if err != nil {
		return fmt.Errorf("open hazard store: %w", err)
	}
	m.store = store

	if m.opts.Migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		m.logger.Info("Hazard schema applied", "channel", m.cfg.Database.Channel)
	}
	return nil
}

func (m *Manager) initFeed() error {
	dialer, err := dialerFactory(m.cfg)
	if err != nil {
		return err
	}
	m.listener = changefeed.NewListener(dialer, changefeed.Options{
		Driver:         m.cfg.Feed.Driver,
		ReconnectDelay: m.cfg.Feed.ReconnectDelay,
		BufferSize:     m.cfg.Feed.BufferSize,
		Logger:         m.logger,
		OnStateChange: func(s changefeed.State) {
			m.logger.Info("Change feed state", "driver", m.cfg.Feed.Driver, "state", s.String())
		},
	})
	return nil
}

func (m *Manager) initServer() {
	m.server = server.New(m.cfg.Server, m.logger)
	m.server.RegisterOnShutdown(func() {
		n := m.registry.CloseAll()
		m.logger.Info("Closed stream sessions", "count", n)
	})

	r := m.server.Router()
	r.Get("/health", m.health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(m.server.Throttle())
		r.Get("/api/hazards/stream", m.stream.ServeSSE)
		r.Get("/api/hazards/ws", m.stream.ServeWS)
	})
	api.NewServer(m.store, m.logger).Routes(r)
}
