package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/myrjola/directorscut/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil)))
	logger = logger.With("source", "Orchestrator")

	ctx := logging.WithAttrs(context.Background(), slog.String("session_id", "abc"))
	ctx = logging.WithAttrs(ctx, slog.String("director", "vera"))
	logger.InfoContext(ctx, "advanced conversation")

	out := buf.String()
	require.Contains(t, out, "source=Orchestrator")
	require.Contains(t, out, "session_id=abc")
	require.Contains(t, out, "director=vera")
}

func TestWithAttrsDoesNotLeakBetweenSiblings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil)))

	parent := logging.WithAttrs(context.Background(), slog.String("session_id", "abc"))
	first := logging.WithAttrs(parent, slog.String("stage", "draft"))
	_ = logging.WithAttrs(parent, slog.String("stage", "final"))

	logger.InfoContext(first, "sibling")
	require.Contains(t, buf.String(), "stage=draft")
	require.NotContains(t, buf.String(), "stage=final")
}
