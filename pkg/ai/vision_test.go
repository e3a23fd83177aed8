package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVisionClientExtractFeatures(t *testing.T) {
	image := []byte{0x89, 0x50, 0x4e, 0x47}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/features" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		var req visionFeaturesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || string(raw) != string(image) {
			t.Fatalf("unexpected image payload")
		}
		_ = json.NewEncoder(w).Encode(visionFeaturesResponse{Features: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	client := NewVisionClient(srv.URL)
	features, err := client.ExtractFeatures(context.Background(), image)
	if err != nil {
		t.Fatalf("extract features: %v", err)
	}
	if len(features) != 3 || features[1] != 0.2 {
		t.Fatalf("unexpected features: %v", features)
	}
}

func TestVisionClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(visionErrorResponse{Error: "unsupported image format"})
	}))
	defer srv.Close()

	client := NewVisionClient(srv.URL)
	if _, err := client.ExtractFeatures(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error from 422 response")
	}
}
