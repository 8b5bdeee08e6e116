package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModelCache(t *testing.T) {
	t.Run("Set And Get", func(t *testing.T) {
		c := NewModelCache(time.Minute)
		c.Set("openai", []string{"gpt-4o-mini"})

		models, ok := c.Get("openai")
		assert.True(t, ok)
		assert.Equal(t, []string{"gpt-4o-mini"}, models)
	})

	t.Run("Miss", func(t *testing.T) {
		c := NewModelCache(time.Minute)
		_, ok := c.Get("cohere")
		assert.False(t, ok)
	})

	t.Run("Expires After TTL", func(t *testing.T) {
		c := NewModelCache(time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }

		c.Set("openai", []string{"m"})
		now = now.Add(2 * time.Minute)

		_, ok := c.Get("openai")
		assert.False(t, ok)
	})

	t.Run("Explicit Invalidation", func(t *testing.T) {
		c := NewModelCache(time.Minute)
		c.Set("openai", []string{"m"})
		c.Invalidate("openai")

		_, ok := c.Get("openai")
		assert.False(t, ok)
	})
}
