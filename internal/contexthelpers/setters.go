package contexthelpers

import (
	"context"
	"net/http"
)

func SetNamespace(r *http.Request, namespace string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, namespaceContextKey, namespace)
	return r.WithContext(ctx)
}

func SetCSRFToken(r *http.Request, csrfToken string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, csrfTokenContextKey, csrfToken)
	return r.WithContext(ctx)
}
