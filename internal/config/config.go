// Package config loads the runtime configuration of directorscut from the environment.
package config

import (
	"time"

	"github.com/myrjola/directorscut/internal/envstruct"
	"github.com/myrjola/directorscut/internal/errors"
)

// Config holds every tunable of the web server and CLI.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string `env:"DIRECTORSCUT_ADDR" envDefault:"localhost:4000"`
	// SqliteURL is the path to the SQLite database file or ":memory:".
	SqliteURL string `env:"DIRECTORSCUT_SQLITE_URL" envDefault:"./directorscut.sqlite"`
	// PprofPort is the port for the pprof server listening on loopback. Empty disables it.
	PprofPort string `env:"DIRECTORSCUT_PPROF_PORT" envDefault:""`
	// SecureCookies sets the Secure flag on session and CSRF cookies.
	SecureCookies bool `env:"DIRECTORSCUT_SECURE_COOKIES" envDefault:"true"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`

	// AttemptTimeout bounds a single generator round trip.
	AttemptTimeout time.Duration `env:"DIRECTORSCUT_ATTEMPT_TIMEOUT" envDefault:"30s"`
	// PersistDebounce collapses rapid session writes into one.
	PersistDebounce time.Duration `env:"DIRECTORSCUT_PERSIST_DEBOUNCE" envDefault:"2s"`
	// SessionExpiry is how old a stored session may be and still be recovered.
	SessionExpiry time.Duration `env:"DIRECTORSCUT_SESSION_EXPIRY" envDefault:"30m"`
	// Countdown is the initial conversation time budget.
	Countdown time.Duration `env:"DIRECTORSCUT_COUNTDOWN" envDefault:"10m"`
	// Extension is added to the remaining time on each allowed extension.
	Extension time.Duration `env:"DIRECTORSCUT_EXTENSION" envDefault:"5m"`
	// MilestoneTurns is the message count that triggers the engagement milestone.
	MilestoneTurns int `env:"DIRECTORSCUT_MILESTONE_TURNS" envDefault:"20"`
}

// Load populates a Config using lookupEnv, which has the same signature as [os.LookupEnv].
func Load(lookupEnv func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return nil, errors.Wrap(err, "populate config")
	}
	return &cfg, nil
}

// Offline reports whether no generator credentials are configured, in which case every conversation runs on
// canned offline replies.
func (c *Config) Offline() bool {
	return c.OpenAIAPIKey == ""
}
