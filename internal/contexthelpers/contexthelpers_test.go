package contexthelpers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/myrjola/directorscut/internal/contexthelpers"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/session", nil)
	require.Empty(t, contexthelpers.Namespace(r.Context()))
	require.Empty(t, contexthelpers.CSRFToken(r.Context()))

	r = contexthelpers.SetNamespace(r, "abc")
	r = contexthelpers.SetCSRFToken(r, "token")
	require.Equal(t, "abc", contexthelpers.Namespace(r.Context()))
	require.Equal(t, "token", contexthelpers.CSRFToken(r.Context()))
}
