package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.HTTPPort)
	assert.Equal(t, DriverPostgres, cfg.Feed.Driver)
	assert.Equal(t, 64, cfg.Feed.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, 5000, cfg.Stream.DefaultRadiusMeters)
	assert.Equal(t, "hazards_channel", cfg.Database.Channel)
	assert.Equal(t, "test-secret", cfg.Auth.Secret)
	assert.Equal(t, filepath.Join(filepath.Dir(dir), "logs"), cfg.Logging.File.Dir)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestLoad_FileAndLocalOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", `
server:
  http_port: 8080
feed:
  driver: nats
  nats:
    subject: city.hazards
stream:
  default_radius_meters: 2500
auth:
  secret: from-file
`)
	writeConfig(t, dir, "config.local.yml", `
server:
  http_port: 9090
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, DriverNATS, cfg.Feed.Driver)
	assert.Equal(t, "city.hazards", cfg.Feed.NATS.Subject)
	assert.Equal(t, "nats://localhost:4222", cfg.Feed.NATS.URL)
	assert.Equal(t, 2500, cfg.Stream.DefaultRadiusMeters)
	assert.Equal(t, "from-file", cfg.Auth.Secret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("HAZARDWATCH_HTTP_PORT", "4000")
	t.Setenv("DATABASE_URL", "postgres://db.internal/hazards")
	t.Setenv("HAZARDWATCH_FEED_DRIVER", "MQTT")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("HAZARDWATCH_LOG_LEVEL", "debug")

	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", "auth:\n  secret: from-file\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, 4000, cfg.Server.HTTPPort)
	assert.Equal(t, "postgres://db.internal/hazards", cfg.Database.DSN)
	assert.Equal(t, DriverMQTT, cfg.Feed.Driver)
	assert.Equal(t, "tcp://broker:1883", cfg.Feed.MQTT.Broker)
	assert.Equal(t, "nats://nats:4222", cfg.Feed.NATS.URL)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Feed.Mongo.URI)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "debug", cfg.Logging.Console.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "config.local.yml", "not: [valid")
		_, err := Load(dir)
		assert.ErrorContains(t, err, "config.local.yml")
	})

	t.Run("unreadable file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "config.yml"), 0755))
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("invalid section", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "config.yml", "feed:\n  driver: kafka\n")
		_, err := Load(dir)
		assert.ErrorContains(t, err, "kafka")
	})
}

func TestFeedConfig_Validate(t *testing.T) {
	cfg := DefaultFeedConfig()
	require.NoError(t, cfg.Validate())

	for _, d := range []string{DriverPostgres, DriverNATS, DriverMongo, DriverMQTT} {
		cfg.Driver = d
		assert.NoError(t, cfg.Validate(), d)
	}

	cfg = DefaultFeedConfig()
	cfg.BufferSize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultFeedConfig()
	cfg.ReconnectDelay = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestFeedConfig_ApplyDefaultsKeepsValues(t *testing.T) {
	cfg := FeedConfig{Driver: DriverMongo, Mongo: MongoFeedConfig{Database: "city"}}
	cfg.ApplyDefaults()

	assert.Equal(t, DriverMongo, cfg.Driver)
	assert.Equal(t, "city", cfg.Mongo.Database)
	assert.Equal(t, "hazards", cfg.Mongo.Collection)
	assert.Equal(t, 64, cfg.BufferSize)
}
