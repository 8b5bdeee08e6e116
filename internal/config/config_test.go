package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DBHost:       "localhost",
			DBUser:       "kora",
			DBName:       "kora",
			SecretKey:    "test-secret",
			ChunkMaxSize: 1000,
			ChunkOverlap: 200,
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("Missing DB Host", func(t *testing.T) {
		cfg := base()
		cfg.DBHost = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("Missing Secret Key", func(t *testing.T) {
		cfg := base()
		cfg.SecretKey = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("Overlap Exceeds Max Size", func(t *testing.T) {
		cfg := base()
		cfg.ChunkOverlap = 1000
		assert.Error(t, cfg.Validate())
	})
}
