package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/content-scheduler/internal/logger"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPPublisher publishes through an integration gateway: one endpoint that
// is target-addressable by integration id and performs any token refresh on
// its own side.
type HTTPPublisher struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewHTTPPublisher creates a publisher for the given gateway.
func NewHTTPPublisher(baseURL, token string, log logger.Logger) (*HTTPPublisher, error) {
	if baseURL == "" {
		return nil, errors.New("publisher base URL is required")
	}

	return &HTTPPublisher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  log,
	}, nil
}

type publishRequest struct {
	ContentID string   `json:"content_id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

type publishResponse struct {
	PostID string `json:"post_id"`
	Error  string `json:"error,omitempty"`
}

// Publish posts the message to the gateway for the given target.
func (p *HTTPPublisher) Publish(ctx context.Context, targetID string, msg Message) (*Result, error) {
	payload, err := json.Marshal(publishRequest{
		ContentID: msg.ContentID,
		Title:     msg.Title,
		Body:      msg.Body,
		MediaURLs: msg.MediaURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal publish request: %w", err)
	}

	url := fmt.Sprintf("%s/targets/%s/posts", p.baseURL, targetID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create publish request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("publish to target %s: %w", targetID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read publish response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, p.responseError(targetID, resp.StatusCode, body)
	}

	var parsed publishResponse
	if unmarshalErr := json.Unmarshal(body, &parsed); unmarshalErr != nil {
		return nil, fmt.Errorf("parse publish response: %w", unmarshalErr)
	}

	return &Result{ExternalPostID: parsed.PostID}, nil
}

// responseError maps gateway status codes onto the retry taxonomy. The
// gateway reporting the target or credential itself as invalid is
// permanent; everything else (rate limiting, 5xx) is worth retrying.
func (p *HTTPPublisher) responseError(targetID string, status int, body []byte) error {
	detail := string(body)
	var parsed publishResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		detail = parsed.Error
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
		http.StatusGone, http.StatusUnprocessableEntity:
		return fmt.Errorf("target %s rejected: %d %s: %w", targetID, status, detail, ErrPermanent)
	default:
		return fmt.Errorf("target %s publish failed: %d %s", targetID, status, detail)
	}
}
