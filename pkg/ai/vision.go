package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultVisionBaseURL = "http://127.0.0.1:8501"

// VisionClient calls the cover-feature inference service. The service
// accepts a base64 image and returns a fixed-length feature vector.
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewVisionClient constructs a client with the provided base URL.
func NewVisionClient(baseURL string) *VisionClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultVisionBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &VisionClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ExtractFeatures returns the feature vector for an image.
func (c *VisionClient) ExtractFeatures(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image data required")
	}
	reqBody := visionFeaturesRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/features", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp visionErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return nil, fmt.Errorf("vision api error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("vision api error: %s", resp.Status)
	}

	var out visionFeaturesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Features) == 0 {
		return nil, fmt.Errorf("vision response missing features")
	}
	return out.Features, nil
}

type visionFeaturesRequest struct {
	Image string `json:"image"`
}

type visionFeaturesResponse struct {
	Features []float32 `json:"features"`
}

type visionErrorResponse struct {
	Error string `json:"error"`
}
