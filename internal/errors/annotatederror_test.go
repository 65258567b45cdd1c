package errors

import (
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnotatedError(t *testing.T) {
	err := New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := NewSentinel("stage out of range")
	require.NotErrorIs(t, err, sentinel)
	wrapped := Wrap(sentinel, "parse stage", slog.String("stage", "detail_9"))
	require.ErrorIs(t, wrapped, sentinel)
	require.Equal(t, "parse stage: stage out of range", wrapped.Error())

	// Ensure log values are coming through.
	var annotated *AnnotatedError
	require.True(t, As(err, &annotated))
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	require.GreaterOrEqual(t, sourceIdx, 0)
	source := group[sourceIdx]
	require.Contains(t, source.Value.String(), "annotatederror_test.go")
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, "nothing to wrap"))
}

func TestSlogError(t *testing.T) {
	inner := New("read snapshot", slog.String("key", "abc:session"))
	outer := Wrap(inner, "recover session", slog.String("director", "vera"))

	attr := SlogError(outer)
	require.Equal(t, "error", attr.Key)
	group := attr.Value.Group()
	require.Equal(t, "message", group[0].Key)
	require.Equal(t, "recover session: read snapshot", group[0].Value.String())
	// Both annotations in the chain are logged.
	require.Len(t, group, 3)
}
