package contexthelpers

import (
	"context"
)

// Namespace returns the conversation namespace of the visitor or an empty string.
func Namespace(ctx context.Context) string {
	namespace, ok := ctx.Value(namespaceContextKey).(string)
	if !ok {
		return ""
	}

	return namespace
}

func CSRFToken(ctx context.Context) string {
	csrfToken, ok := ctx.Value(csrfTokenContextKey).(string)
	if !ok {
		return ""
	}

	return csrfToken
}
