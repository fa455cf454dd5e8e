package provideradapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/domain/provider"
)

func TestHTTPClient_Enrich_BearerAuthSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"a@b.com","phone":"555-1234"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "/v1/match", AuthBearer)
	result, err := client.Enrich(context.Background(), provider.Credentials{Key: "secret-token"}, map[string]interface{}{"email": "a@b.com"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.IsComplete)
	assert.Equal(t, "555-1234", result.Data["phone"])
}

func TestHTTPClient_Enrich_ClientErrorIsNonRetryableFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "/v1/match", AuthBearer)
	result, err := client.Enrich(context.Background(), provider.Credentials{Key: "k"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "404")
}

func TestHTTPClient_Enrich_ServerErrorPropagatesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "/v1/match", AuthBearer)
	_, err := client.Enrich(context.Background(), provider.Credentials{Key: "k"}, nil)
	require.Error(t, err)
}

func TestHTTPClient_Enrich_APIKeyHeaderAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "the-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "the-secret", r.Header.Get("X-Api-Secret"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "/v1/match", AuthAPIKeyHeader)
	client.APIKeyHeader = "X-Api-Key"
	client.APISecretHeader = "X-Api-Secret"
	_, err := client.Enrich(context.Background(), provider.Credentials{Key: "the-key", Secret: "the-secret"}, nil)
	require.NoError(t, err)
}
