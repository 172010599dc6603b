package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingServer(t *testing.T, dim int, handler http.HandlerFunc) (*HTTPEmbeddingProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPEmbeddingProvider(srv.URL, "test-key", "embed-test", dim), srv
}

func vecOfOnes(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestHTTPEmbeddingProvider_EmbedText_ReturnsSingleVector(t *testing.T) {
	provider, _ := embeddingServer(t, 3, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": vecOfOnes(3)},
			},
		})
	})

	v, err := provider.EmbedText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("expected a 3-dimensional vector, got %d", len(v))
	}
}

func TestHTTPEmbeddingProvider_EmbedBatch_ReturnsOneVectorPerInput(t *testing.T) {
	provider, _ := embeddingServer(t, 2, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		inputs, _ := body["input"].([]interface{})

		data := make([]map[string]interface{}, len(inputs))
		for i := range inputs {
			data[i] = map[string]interface{}{"embedding": vecOfOnes(2)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	})

	vecs, err := provider.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
}

func TestHTTPEmbeddingProvider_EmbedBatch_DimensionMismatchIsHardError(t *testing.T) {
	provider, _ := embeddingServer(t, 5, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": vecOfOnes(3)},
			},
		})
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}
}

func TestHTTPEmbeddingProvider_EmbedBatch_NonOKStatusIsAnError(t *testing.T) {
	provider, _ := embeddingServer(t, 3, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}

func TestHTTPEmbeddingProvider_ModelNameAndDimension(t *testing.T) {
	provider, _ := embeddingServer(t, 7, func(w http.ResponseWriter, r *http.Request) {})
	if provider.ModelName() != "embed-test" {
		t.Errorf("ModelName() = %q", provider.ModelName())
	}
	if provider.Dimension() != 7 {
		t.Errorf("Dimension() = %d, want 7", provider.Dimension())
	}
}
