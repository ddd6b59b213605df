// Package services contains clients for the sidecar services the workflow
// engine depends on.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPPhotoClient is an HTTP implementation of the repository.PhotoCounter
// interface, backed by the media/vision sidecar that indexes job photos.
type HTTPPhotoClient struct {
	url string
}

// NewHTTPPhotoClient creates a new HTTPPhotoClient.
func NewHTTPPhotoClient(url string) *HTTPPhotoClient {
	return &HTTPPhotoClient{url: url}
}

// CountPhotosForSubject returns the number of photos documented for a job or
// project.
func (c *HTTPPhotoClient) CountPhotosForSubject(ctx context.Context, subjectID string) (int, error) {
	endpoint := fmt.Sprintf("%s/subjects/%s/photos/count", c.url, url.PathEscape(subjectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to count photos: status code %d", resp.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response body: %w", err)
	}

	return body.Count, nil
}
