package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfoundry/shopseo/pkg/config"
)

type sampleConfig struct {
	URL     string        `env:"SAMPLE_URL,required"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" envDefault:"10s"`
	Test    bool          `env:"SAMPLE_TEST" envDefault:"true"`
}

func TestLoadFrom(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		require.NoError(t, config.LoadFrom(&cfg, map[string]string{"SAMPLE_URL": "https://app.example.com"}))
		assert.Equal(t, "https://app.example.com", cfg.URL)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.True(t, cfg.Test)
	})

	t.Run("missing required value", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.LoadFrom(&cfg, map[string]string{})
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, config.LoadFrom[sampleConfig](nil, nil), config.ErrNilPointer)
	})
}

type cachedConfig struct {
	Value string `env:"CONFIG_TEST_CACHED_VALUE" envDefault:"first"`
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("CONFIG_TEST_CACHED_VALUE", "first")

	var a cachedConfig
	require.NoError(t, config.Load(&a))
	assert.Equal(t, "first", a.Value)

	t.Setenv("CONFIG_TEST_CACHED_VALUE", "second")

	var b cachedConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value)
}

func TestMustLoad_Panics(t *testing.T) {
	type requiredConfig struct {
		Value string `env:"CONFIG_TEST_MUST_LOAD_MISSING,required"`
	}
	var cfg requiredConfig
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
