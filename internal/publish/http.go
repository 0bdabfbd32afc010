package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const userAgent = "kitsusync/0.1.0"

// HTTPDestination publishes artifacts by PUT to {endpoint}/{artifact-id}.
// The destination is expected to treat PUT as an idempotent overwrite.
type HTTPDestination struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPDestination builds an HTTP destination. Token, when non-empty, is
// sent as a bearer credential.
func NewHTTPDestination(endpoint, token string, timeout time.Duration) (*HTTPDestination, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("publish endpoint required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDestination{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Publish uploads one artifact. Non-2xx responses fail with the destination's
// status so the operator report can show what the server said.
func (d *HTTPDestination) Publish(ctx context.Context, artifact Artifact) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	target := d.endpoint + "/" + url.PathEscape(artifact.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, file)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("User-Agent", userAgent)
	if artifact.ContentType != "" {
		req.Header.Set("Content-Type", artifact.ContentType)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(body))
		if detail != "" {
			return fmt.Errorf("destination returned %d: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("destination returned %d", resp.StatusCode)
	}
	return nil
}
