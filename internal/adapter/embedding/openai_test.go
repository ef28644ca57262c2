package embedding

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"recall/internal/domain"
)

func newMockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newMockProvider(t *testing.T, srv *httptest.Server, dimension, batchSize int) *OpenAIProvider {
	t.Helper()
	t.Setenv("TEST_API_KEY", "sk-test")
	p, err := NewOpenAIProvider("TEST_API_KEY", "test-model", srv.URL, dimension, batchSize)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotAuth string
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		// Respond out of order to exercise index mapping.
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, 3)
			v[i%3] = 2 // non-unit so normalization is observable
			resp.Data = append(resp.Data, embeddingData{Embedding: v, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	})

	p := newMockProvider(t, srv, 3, 100)
	vectors, err := p.Embed([]string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors not normalized or out of order: %v", vectors)
	}
}

func TestOpenAIProviderRebatches(t *testing.T) {
	var requests int
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) > 2 {
			t.Errorf("batch of %d exceeds configured size", len(req.Input))
		}

		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingData{Embedding: []float32{1, 0}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	})

	p := newMockProvider(t, srv, 2, 2)
	vectors, err := p.Embed([]string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vectors))
	}
	if requests != 3 {
		t.Errorf("expected 3 requests for 5 inputs at batch size 2, got %d", requests)
	}
}

func TestOpenAIProviderAPIError(t *testing.T) {
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	})

	p := newMockProvider(t, srv, 3, 100)
	_, err := p.Embed([]string{"text"})
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %T: %v", err, err)
	}
}

func TestOpenAIProviderDimensionMismatch(t *testing.T) {
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{
			Data: []embeddingData{{Embedding: []float32{1, 0, 0, 0}, Index: 0}},
		}
		json.NewEncoder(w).Encode(resp)
	})

	p := newMockProvider(t, srv, 3, 100)
	if _, err := p.Embed([]string{"text"}); err == nil {
		t.Error("expected error for wrong embedding dimension")
	}
}

func TestOpenAIProviderMissingItem(t *testing.T) {
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Two inputs but only one embedding back.
		resp := embeddingResponse{
			Data: []embeddingData{{Embedding: []float32{1, 0, 0}, Index: 0}},
		}
		json.NewEncoder(w).Encode(resp)
	})

	p := newMockProvider(t, srv, 3, 100)
	if _, err := p.Embed([]string{"one", "two"}); err == nil {
		t.Error("expected error for missing embedding")
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector %v", v)
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector must be left unchanged, got %v", zero)
	}
}

func TestNewOpenAIProviderMissingKey(t *testing.T) {
	t.Setenv("TEST_ABSENT_KEY", "")
	if _, err := NewOpenAIProvider("TEST_ABSENT_KEY", "m", "", 3, 0); err == nil {
		t.Error("expected error for missing API key")
	}
}
