package config_test

import (
	"testing"
	"time"

	"github.com/myrjola/directorscut/internal/config"
	"github.com/myrjola/directorscut/internal/envstruct"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.Load(func(string) (string, bool) { return "", false })
		require.NoError(t, err)
		require.Equal(t, "localhost:4000", cfg.Addr)
		require.Equal(t, 2*time.Second, cfg.PersistDebounce)
		require.Equal(t, 30*time.Minute, cfg.SessionExpiry)
		require.Equal(t, 20, cfg.MilestoneTurns)
		require.True(t, cfg.SecureCookies)
		require.True(t, cfg.Offline())
	})

	t.Run("overrides", func(t *testing.T) {
		env := map[string]string{
			"DIRECTORSCUT_ADDR":           "localhost:0",
			"OPENAI_API_KEY":              "sk-test",
			"DIRECTORSCUT_COUNTDOWN":      "90s",
			"DIRECTORSCUT_SECURE_COOKIES": "false",
		}
		cfg, err := config.Load(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		})
		require.NoError(t, err)
		require.Equal(t, "localhost:0", cfg.Addr)
		require.Equal(t, 90*time.Second, cfg.Countdown)
		require.False(t, cfg.SecureCookies)
		require.False(t, cfg.Offline())
	})

	t.Run("invalid duration", func(t *testing.T) {
		_, err := config.Load(func(key string) (string, bool) {
			if key == "DIRECTORSCUT_SESSION_EXPIRY" {
				return "half an hour", true
			}
			return "", false
		})
		require.ErrorIs(t, err, envstruct.ErrParse)
	})
}
