// Package patch holds the HTTP client for the external patch-suggestion
// service. The service is LLM-backed and treated as slow and fallible:
// timeouts, transport errors and malformed responses are all reported
// as errors and the orchestrator handles them like a decline.
package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// request is the payload sent to the repair service
type request struct {
	ErrorText        string `json:"error_text"`
	FileName         string `json:"file_name"`
	FileContents     string `json:"file_contents"`
	DirectoryListing string `json:"directory_listing"`
}

// response is the repair service's answer. An empty Content or
// Fixed=false means the service declined to patch.
type response struct {
	Fixed   bool   `json:"fixed"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// Client calls the patch-suggestion endpoint
type Client struct {
	endpoint string
	httpc    *http.Client
}

// NewClient creates a patch client for the given endpoint
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
	}
}

// SuggestPatch asks the repair service for a full replacement of the
// failing file. It returns an empty string when the service declines.
func (c *Client) SuggestPatch(ctx context.Context, errorText, fileName, fileContents, directoryListing string) (string, error) {
	body, err := json.Marshal(request{
		ErrorText:        errorText,
		FileName:         fileName,
		FileContents:     fileContents,
		DirectoryListing: directoryListing,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode patch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("patch service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("patch service returned status %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed patch response: %w", err)
	}
	if !out.Fixed || out.Content == "" {
		return "", nil
	}
	return out.Content, nil
}
