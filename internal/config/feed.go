package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Feed drivers.
const (
	DriverPostgres = "postgres"
	DriverNATS     = "nats"
	DriverMongo    = "mongo"
	DriverMQTT     = "mqtt"
)

// FeedConfig selects and configures the change feed the listener consumes.
type FeedConfig struct {
	// Driver is one of postgres, nats, mongo or mqtt.
	Driver string `yaml:"driver"`

	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// BufferSize is the listener-to-broadcaster channel capacity.
	BufferSize int `yaml:"buffer_size"`

	NATS  NATSFeedConfig  `yaml:"nats"`
	Mongo MongoFeedConfig `yaml:"mongo"`
	MQTT  MQTTFeedConfig  `yaml:"mqtt"`
}

type NATSFeedConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MongoFeedConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type MQTTFeedConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// DefaultFeedConfig listens on PostgreSQL, the store that owns the trigger.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Driver:         DriverPostgres,
		ReconnectDelay: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		BufferSize:     64,
		NATS: NATSFeedConfig{
			URL:     "nats://localhost:4222",
			Subject: "hazards.changes",
		},
		Mongo: MongoFeedConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "hazardwatch",
			Collection: "hazards",
		},
		MQTT: MQTTFeedConfig{
			Broker: "tcp://localhost:1883",
			Topic:  "hazards/changes",
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *FeedConfig) ApplyDefaults() {
	d := DefaultFeedConfig()
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	if c.NATS.URL == "" {
		c.NATS.URL = d.NATS.URL
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = d.NATS.Subject
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = d.Mongo.URI
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = d.Mongo.Database
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = d.Mongo.Collection
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = d.MQTT.Broker
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = d.MQTT.Topic
	}
}

// ApplyEnvOverrides reads HAZARDWATCH_FEED_DRIVER, NATS_URL, MONGO_URI and
// MQTT_BROKER.
func (c *FeedConfig) ApplyEnvOverrides() {
	if v := os.Getenv("HAZARDWATCH_FEED_DRIVER"); v != "" {
		c.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
}

func (c *FeedConfig) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *FeedConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverNATS, DriverMongo, DriverMQTT:
	default:
		return fmt.Errorf("feed: unknown driver %q (must be postgres, nats, mongo or mqtt)", c.Driver)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("feed: reconnect_delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("feed: buffer_size must be positive, got %d", c.BufferSize)
	}
	return nil
}
