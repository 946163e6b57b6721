// Package config loads the process configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DB_URL" required:"true"`

	NATSURL      string `envconfig:"NATS_URL" required:"true"`
	NATSCredFile string `envconfig:"NATS_CRED"`
	NATSUser     string `envconfig:"NATS_USER"`
	NATSPassword string `envconfig:"NATS_PASSWORD"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISS" default:"kallemny"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"168h"`

	// Per-client action limits over a one minute window.
	MessagesPerMinute int `envconfig:"MESSAGES_PER_MINUTE" default:"30"`
	TypingPerMinute   int `envconfig:"TYPING_PER_MINUTE" default:"60"`

	// Per-IP limit for the credential endpoints.
	AuthRequestsPerMinute int `envconfig:"AUTH_REQUESTS_PER_MINUTE" default:"10"`

	ClientBufferSize int `envconfig:"CLIENT_BUFFER_SIZE" default:"64"`
	EventBufferSize  int `envconfig:"EVENT_BUFFER_SIZE" default:"1024"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
