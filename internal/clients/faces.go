package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FaceGateway talks to the external face-capture service that stores
// reference images and returns a public URL for the stored image.
type FaceGateway struct {
	baseURL    string
	httpClient *http.Client
}

func NewFaceGateway(baseURL string, timeout time.Duration) *FaceGateway {
	return &FaceGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type enrollRequest struct {
	Email string `json:"email"`
	Image string `json:"image"`
}

type enrollResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Enroll submits a base64 face image and returns the stored image URL.
func (g *FaceGateway) Enroll(ctx context.Context, email, image string) (string, error) {
	body, err := json.Marshal(enrollRequest{Email: email, Image: image})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/enroll", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed enrollResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return "", errors.New(parsed.Error)
		}
		return "", fmt.Errorf("face gateway returned %d", resp.StatusCode)
	}
	if parsed.URL == "" {
		return "", errors.New("face gateway returned no url")
	}
	return parsed.URL, nil
}
