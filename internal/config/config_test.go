package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MAPBOX_TOKEN", "pk.test")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 30*time.Second, cfg.RouteCacheTTL)
	assert.Equal(t, "mapbox", cfg.DirectionsProvider)
	assert.Equal(t, 8.0, cfg.DefaultSpeedMps)
	assert.Equal(t, int64(100), cfg.StripeUnitScale)
	assert.Equal(t, 20, cfg.NearbyLimit)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.RunMigrations)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DIRECTIONS_PROVIDER", "OSRM")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("ROUTE_TIMEOUT", "750ms")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "osrm", cfg.DirectionsProvider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.RouteTimeout)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("DIRECTIONS_PROVIDER", "carrier-pigeon")
	t.Setenv("ROUTE_TIMEOUT", "soon")
	t.Setenv("DEFAULT_SPEED_MPS", "fast")
	t.Setenv("NEARBY_LIMIT", "0")

	_, err := LoadServerConfig()
	require.Error(t, err)
	for _, want := range []string{"ROUTE_TIMEOUT", "DEFAULT_SPEED_MPS", "DIRECTIONS_PROVIDER", "JWT_SECRET", "NEARBY_LIMIT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	_, err := LoadConsumerConfig()
	assert.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "k1:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)
	assert.Equal(t, "order-events", cfg.KafkaTopic)
	assert.Equal(t, "open_orders_geo", cfg.RedisGeoKey)
}
