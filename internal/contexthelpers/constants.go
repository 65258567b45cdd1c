package contexthelpers

type contextKey string

const namespaceContextKey = contextKey("namespace")
const csrfTokenContextKey = contextKey("csrfToken")
