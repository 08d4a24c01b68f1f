package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/newshub/newsdesk/internal/config"
	"github.com/newshub/newsdesk/internal/models"
)

// MediaHost is the boundary to the external media storage service. The host
// owns the bytes; articles only reference them by URL and external id.
type MediaHost interface {
	Upload(ctx context.Context, data []byte, folder string) (*models.Attachment, error)
	// Release frees a hosted file. A missing external id is not an error.
	Release(ctx context.Context, externalID string) error
}

// HTTPMediaHost talks to the media host's JSON API.
type HTTPMediaHost struct {
	config *config.MediaConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTTPMediaHost(cfg *config.MediaConfig, logger *zap.Logger) *HTTPMediaHost {
	return &HTTPMediaHost{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (h *HTTPMediaHost) Upload(ctx context.Context, data []byte, folder string) (*models.Attachment, error) {
	url := fmt.Sprintf("%s/v1/%s/upload", h.config.BaseURL, h.config.Bucket)

	body := map[string]any{
		"folder": folder,
		"data":   base64.StdEncoding.EncodeToString(data),
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("media host returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var response struct {
		URL        string   `json:"url"`
		ExternalID string   `json:"external_id"`
		Variants   []string `json:"variants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &models.Attachment{
		URL:        response.URL,
		ExternalID: response.ExternalID,
		Variants:   response.Variants,
	}, nil
}

func (h *HTTPMediaHost) Release(ctx context.Context, externalID string) error {
	url := fmt.Sprintf("%s/v1/%s/files/%s", h.config.BaseURL, h.config.Bucket, externalID)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// The file being gone already is fine; release is best-effort cleanup.
	if resp.StatusCode == http.StatusNotFound {
		h.logger.Debug("Media file already released", zap.String("external_id", externalID))
		return nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("media host returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
