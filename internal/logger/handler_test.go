package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"kora/backend/internal/middleware"
)

func TestContextHandler(t *testing.T) {
	t.Run("Adds Correlation ID From Context", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
		l.InfoContext(ctx, "hello")

		assert.Contains(t, buf.String(), `"correlation_id":"corr-1"`)
	})

	t.Run("No Correlation ID", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		l.InfoContext(context.Background(), "hello")

		assert.NotContains(t, buf.String(), "correlation_id")
	})
}
