package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every externally tunable knob of the chat client. It is
// loaded once by the consumer and passed explicitly into constructors;
// no package reads the environment on its own.
type Config struct {
	// APIBaseURL is the REST collaborator root, e.g. http://localhost:8000.
	APIBaseURL string `env:"DEALGOAT_API_URL" envDefault:"http://localhost:8000"`
	// WSBaseURL is the websocket root, e.g. ws://localhost:8000.
	WSBaseURL string `env:"DEALGOAT_WS_URL" envDefault:"ws://localhost:8000"`
	// NominatimURL is the place-search service root.
	NominatimURL string `env:"DEALGOAT_NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org"`
	// RedisURL enables the shared geocode cache when set.
	RedisURL string `env:"DEALGOAT_REDIS_URL"`

	RequestTimeout time.Duration `env:"DEALGOAT_REQUEST_TIMEOUT" envDefault:"10s"`
	DialTimeout    time.Duration `env:"DEALGOAT_DIAL_TIMEOUT" envDefault:"10s"`

	// ReconnectAttempts caps session-level redials after a transport
	// error. Zero disables reconnection entirely.
	ReconnectAttempts int `env:"DEALGOAT_RECONNECT_ATTEMPTS" envDefault:"5"`

	GeocodeLimit    int           `env:"DEALGOAT_GEOCODE_LIMIT" envDefault:"5"`
	GeocodeCacheTTL time.Duration `env:"DEALGOAT_GEOCODE_CACHE_TTL" envDefault:"1h"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.GeocodeLimit <= 0 {
		cfg.GeocodeLimit = 5
	}
	return cfg, nil
}
