package spotapi

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the shared authenticated context every top-level component holds
// by reference: one transport (one cookie jar), one logger, one solver.
// Login, Creator, Client and RealtimeSession all compose around the same
// Config instance rather than copying each other's state.
type Config struct {
	Client *Transport
	Log    *logrus.Entry
	Solver Solver
}

// NewConfig fills in defaults for any nil field and returns the config
// ready for use.
func NewConfig(cfg *Config) (*Config, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Log == nil {
		cfg.Log = noopLogger()
	}
	if cfg.Client == nil {
		client, err := NewTransport(cfg.Log)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	return cfg, nil
}

// LoadEnv builds a Config from the environment, reading a .env file first if
// one is present. Recognized variables:
//
//	CAPSOLVER_API_KEY   use the CapSolver vendor
//	CAPMONSTER_API_KEY  use the CapMonster vendor (CapSolver wins if both set)
//	PROXY               proxy URL for the Spotify transport
//
// A missing solver key is not an error here; flows that need one fail with a
// fatal error when they run.
func LoadEnv() (*Config, error) {
	_ = godotenv.Load()

	log := NewLogger()

	var opts []TransportOption
	if proxy := os.Getenv("PROXY"); proxy != "" {
		opts = append(opts, WithProxy(proxy))
	}
	client, err := NewTransport(log, opts...)
	if err != nil {
		return nil, err
	}

	var solver Solver
	if key := os.Getenv("CAPSOLVER_API_KEY"); key != "" {
		solver = NewCapsolver(key)
	} else if key := os.Getenv("CAPMONSTER_API_KEY"); key != "" {
		solver = NewCapmonster(key)
	}

	return &Config{Client: client, Log: log, Solver: solver}, nil
}

// EnvCredentials returns the EMAIL and PASSWORD variables, reading a .env
// file first if present. Used by .env-driven harnesses and the opt-in live
// tests.
func EnvCredentials() (identifier, password string) {
	_ = godotenv.Load()
	return os.Getenv("EMAIL"), os.Getenv("PASSWORD")
}
