package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"vecstore/embedding"
)

func TestEmbed(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/embeddings", r.URL.Path)
		assert.Equal("Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			assert.Fail(err.Error())
			return
		}

		assert.Equal("test-model", req.Model)
		assert.Equal("hello world", req.Input)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer srv.Close()

	embedder := NewEmbedder(embedding.Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		Model:     "test-model",
		Dimension: 3,
	})

	vec, err := embedder.Embed(context.Background(), "hello world")
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal([]float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	embedder := NewEmbedder(embedding.Config{
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 3,
	})

	_, err := embedder.Embed(context.Background(), "hello")
	assert.Error(err)
	assert.Contains(err.Error(), "dimension")
}

func TestEmbedUpstreamError(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	embedder := NewEmbedder(embedding.Config{
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 3,
	})

	_, err := embedder.Embed(context.Background(), "hello")
	assert.Error(err)
	assert.Contains(err.Error(), "503")
}
