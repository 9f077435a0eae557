package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LivenessClient asks the liveness classifier whether a frame shows a live face.
type LivenessClient struct {
	baseURL string
	client  *http.Client
}

// NewLivenessClient returns nil when baseURL is empty so callers fall back to
// recognition-only mode.
func NewLivenessClient(baseURL string, timeout time.Duration) *LivenessClient {
	if baseURL == "" {
		return nil
	}
	return &LivenessClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// IsLive posts the frame to /liveness.
func (c *LivenessClient) IsLive(ctx context.Context, frame []byte) (bool, error) {
	if c == nil {
		return false, errors.New("liveness client not configured")
	}
	body, err := postMultipartImage(ctx, c.client, c.baseURL+"/liveness", frame)
	if err != nil {
		return false, err
	}

	var resp LivenessResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Live, nil
}
