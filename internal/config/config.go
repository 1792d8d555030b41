package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from the environment with defaults that run locally against
// in-memory collaborators.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	PGDSN string

	DirectionsProvider string
	MapboxEndpoint     string
	MapboxToken        string
	MapboxProfile      string
	OSRMEndpoint       string
	RouteTimeout       time.Duration
	RouteCacheTTL      time.Duration
	DefaultSpeedMps    float64

	LedgerViewURL   string
	LedgerSubmitURL string
	LedgerContract  string
	LedgerTimeout   time.Duration

	DeviceAPIURL  string
	DeviceTimeout time.Duration

	PinataAPIKey    string
	PinataAPISecret string
	PinataGateway   string

	StripeAPIKey    string
	StripeCurrency  string
	StripeUnitScale int64

	JWTSecret string
	JWTIssuer string

	NearbyRadiusKm float64
	NearbyLimit    int

	LogLevel      string
	RunMigrations bool
}

var defaults = map[string]string{
	"HTTP_ADDR":             ":8080",
	"HTTP_READ_TIMEOUT":     "5s",
	"HTTP_WRITE_TIMEOUT":    "15s",
	"HTTP_IDLE_TIMEOUT":     "120s",
	"HTTP_SHUTDOWN_TIMEOUT": "15s",
	"REDIS_GEO_KEY":         "open_orders_geo",
	"KAFKA_TOPIC":           "order-events",
	"KAFKA_GROUP_ID":        "order-geo-indexer",
	"DIRECTIONS_PROVIDER":   "mapbox",
	"MAPBOX_ENDPOINT":       "https://api.mapbox.com",
	"MAPBOX_PROFILE":        "driving",
	"OSRM_ENDPOINT":         "https://router.project-osrm.org",
	"ROUTE_TIMEOUT":         "5s",
	"ROUTE_CACHE_TTL":       "30s",
	"DEFAULT_SPEED_MPS":     "8",
	"LEDGER_TIMEOUT":        "10s",
	"DEVICE_API_URL":        "http://127.0.0.1:5000",
	"DEVICE_TIMEOUT":        "10s",
	"PINATA_GATEWAY":        "https://gateway.pinata.cloud",
	"STRIPE_CURRENCY":       "usd",
	"STRIPE_UNIT_SCALE":     "100",
	"JWT_ISSUER":            "box3",
	"NEARBY_RADIUS_KM":      "5",
	"NEARBY_LIMIT":          "20",
	"LOG_LEVEL":             "info",
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

func LoadServerConfig() (ServerConfig, error) {
	v := newViper()
	var cfg ServerConfig
	var errs []error

	cfg.HTTPAddr = str(v, "HTTP_ADDR")
	setDuration(v, &cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDuration(v, &cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDuration(v, &cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDuration(v, &cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = str(v, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	cfg.RedisGeoKey = str(v, "REDIS_GEO_KEY")

	cfg.KafkaBrokers = splitAndTrim(v.GetString("KAFKA_BROKERS"))
	cfg.KafkaTopic = str(v, "KAFKA_TOPIC")
	cfg.KafkaGroupID = str(v, "KAFKA_GROUP_ID")

	cfg.PGDSN = v.GetString("PG_DSN")

	cfg.DirectionsProvider = strings.ToLower(str(v, "DIRECTIONS_PROVIDER"))
	cfg.MapboxEndpoint = str(v, "MAPBOX_ENDPOINT")
	cfg.MapboxToken = str(v, "MAPBOX_TOKEN")
	cfg.MapboxProfile = str(v, "MAPBOX_PROFILE")
	cfg.OSRMEndpoint = str(v, "OSRM_ENDPOINT")
	setDuration(v, &cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)
	setDuration(v, &cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setFloat(v, &cfg.DefaultSpeedMps, "DEFAULT_SPEED_MPS", &errs)

	cfg.LedgerViewURL = str(v, "LEDGER_RPC_URL")
	cfg.LedgerSubmitURL = str(v, "LEDGER_SUBMIT_URL")
	cfg.LedgerContract = str(v, "LEDGER_CONTRACT")
	setDuration(v, &cfg.LedgerTimeout, "LEDGER_TIMEOUT", &errs)

	cfg.DeviceAPIURL = str(v, "DEVICE_API_URL")
	setDuration(v, &cfg.DeviceTimeout, "DEVICE_TIMEOUT", &errs)

	cfg.PinataAPIKey = str(v, "PINATA_API_KEY")
	cfg.PinataAPISecret = str(v, "PINATA_API_SECRET")
	cfg.PinataGateway = str(v, "PINATA_GATEWAY")

	cfg.StripeAPIKey = str(v, "STRIPE_API_KEY")
	cfg.StripeCurrency = str(v, "STRIPE_CURRENCY")
	setInt64(v, &cfg.StripeUnitScale, "STRIPE_UNIT_SCALE", &errs)

	cfg.JWTSecret = v.GetString("JWT_SECRET")
	cfg.JWTIssuer = str(v, "JWT_ISSUER")

	setFloat(v, &cfg.NearbyRadiusKm, "NEARBY_RADIUS_KM", &errs)
	var limit int64
	setInt64(v, &limit, "NEARBY_LIMIT", &errs)
	cfg.NearbyLimit = int(limit)

	cfg.LogLevel = strings.ToLower(str(v, "LOG_LEVEL"))
	cfg.RunMigrations = strings.EqualFold(str(v, "MIGRATE"), "true")

	switch cfg.DirectionsProvider {
	case "mapbox":
		if cfg.MapboxToken == "" {
			errs = append(errs, fmt.Errorf("MAPBOX_TOKEN is required for the mapbox provider"))
		}
	case "osrm":
	default:
		errs = append(errs, fmt.Errorf("DIRECTIONS_PROVIDER must be mapbox or osrm, got %q", cfg.DirectionsProvider))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}
	if cfg.LedgerViewURL != "" && cfg.LedgerContract == "" {
		errs = append(errs, fmt.Errorf("LEDGER_CONTRACT is required with LEDGER_RPC_URL"))
	}
	if cfg.StripeUnitScale <= 0 {
		errs = append(errs, fmt.Errorf("STRIPE_UNIT_SCALE must be > 0"))
	}
	if cfg.NearbyLimit <= 0 {
		errs = append(errs, fmt.Errorf("NEARBY_LIMIT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig is the subset the order-event consumer needs.
type ConsumerConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	v := newViper()
	cfg := ConsumerConfig{
		KafkaBrokers:  splitAndTrim(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:    str(v, "KAFKA_TOPIC"),
		KafkaGroupID:  str(v, "KAFKA_GROUP_ID"),
		RedisAddr:     str(v, "REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisGeoKey:   str(v, "REDIS_GEO_KEY"),
		LogLevel:      strings.ToLower(str(v, "LOG_LEVEL")),
	}
	var errs []error
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required"))
	}
	if cfg.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg, errors.Join(errs...)
}

func str(v *viper.Viper, key string) string { return strings.TrimSpace(v.GetString(key)) }

func setDuration(v *viper.Viper, target *time.Duration, key string, errs *[]error) {
	d, err := time.ParseDuration(str(v, key))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*target = d
}

func setFloat(v *viper.Viper, target *float64, key string, errs *[]error) {
	f, err := strconv.ParseFloat(str(v, key), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*target = f
}

func setInt64(v *viper.Viper, target *int64, key string, errs *[]error) {
	i, err := strconv.ParseInt(str(v, key), 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*target = i
}

func splitAndTrim(v string) []string {
	if v == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
