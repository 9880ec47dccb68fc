// Package collab holds clients for external collaborators: object
// storage, the normalization service, and the notifier. Their failures
// are isolated from the core job outcome unless explicitly fatal.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// UploadResult is what object storage reports for a stored artifact.
type UploadResult struct {
	StoredPath string `json:"stored_path"`
	SharedLink string `json:"shared_link"`
}

// ObjectStore accepts (path, bytes) and returns where the artifact
// landed. Callers treat failures as non-fatal.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte) (*UploadResult, error)
}

// HTTPObjectStore talks to the storage collaborator over HTTP.
type HTTPObjectStore struct {
	baseURL string
	client  *http.Client
}

var _ ObjectStore = (*HTTPObjectStore)(nil)

func NewHTTPObjectStore(baseURL string, timeout time.Duration) *HTTPObjectStore {
	return &HTTPObjectStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload PUTs the artifact bytes and decodes the storage response.
func (s *HTTPObjectStore) Upload(ctx context.Context, path string, data []byte) (*UploadResult, error) {
	u := fmt.Sprintf("%s/objects/%s", s.baseURL, url.PathEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload %s: bad status %s", path, resp.Status)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}
