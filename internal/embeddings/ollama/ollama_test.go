package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "gm frens", req.Prompt)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.5,1.5,-2]}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "nomic-embed-text")
	vec, err := p.Embed(context.Background(), "gm frens")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5, -2}, vec)
}

func TestEmbed_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "m")
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	_, err = p.Embed(context.Background(), "   ")
	require.Error(t, err)
}

func TestHealthPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "nomic-embed-text").HealthPing(context.Background()))
	err := New(srv.URL, "mxbai").HealthPing(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "mxbai"))
}

func TestNew_AddsScheme(t *testing.T) {
	p := New("localhost:11434", "m")
	assert.Equal(t, "http://localhost:11434", p.client.BaseURL)
}
