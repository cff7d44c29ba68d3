package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/config"
)

type appConfig struct {
	Name    string        `env:"CONFIG_TEST_NAME" envDefault:"billingd"`
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"10s"`
	Retries int           `env:"CONFIG_TEST_RETRIES"`
}

type fileConfig struct {
	Value string   `env:"CONFIG_TEST_FILE_VALUE"`
	List  []string `env:"CONFIG_TEST_LIST" envSeparator:","`
}

type requiredConfig struct {
	Secret string `env:"CONFIG_TEST_REQUIRED_SECRET,required"`
}

// These tests mutate the process environment and the shared cache, so they
// do not run in parallel.

func TestLoad(t *testing.T) {
	t.Run("defaults and overrides", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CONFIG_TEST_RETRIES", "4")

		var cfg appConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "billingd", cfg.Name)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Equal(t, 4, cfg.Retries)
	})

	t.Run("cached after first load", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CONFIG_TEST_NAME", "first")

		var first appConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("CONFIG_TEST_NAME", "second")
		var second appConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first", second.Name)

		config.ResetCache()
		var third appConfig
		require.NoError(t, config.Load(&third))
		assert.Equal(t, "second", third.Name)
	})

	t.Run("missing required value", func(t *testing.T) {
		config.ResetCache()
		var cfg requiredConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[appConfig](nil), config.ErrNilPointer)
	})

	t.Run("must load panics", func(t *testing.T) {
		config.ResetCache()
		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("reads dotenv files", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CONFIG_TEST_FILE_VALUE", "")
		t.Setenv("CONFIG_TEST_LIST", "")
		// godotenv does not override variables that are already set,
		// including empty ones, so start from an unset state.
		unset(t, "CONFIG_TEST_FILE_VALUE", "CONFIG_TEST_LIST")

		require.NoError(t, config.LoadEnv("testdata/.env.test"))

		var cfg fileConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from_file", cfg.Value)
		assert.Equal(t, []string{"a", "b", "c"}, cfg.List)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.ErrorIs(t, config.LoadEnv("testdata/does-not-exist.env"), config.ErrLoadingEnvFile)
	})
}

func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}
