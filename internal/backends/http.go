package backends

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPBackend serves http:// and https:// URIs. Download is a GET;
// upload is a PUT for servers that accept one.
type HTTPBackend struct {
	client *http.Client
}

func NewHTTPBackend(client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Download(ctx context.Context, uri string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("invalid http uri %q: %w", uri, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: The specified input file cannot be found: %s", ErrSourceNotFound, uri)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("fetch of %s returned status %d", uri, resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return nil
}

func (b *HTTPBackend) Upload(ctx context.Context, uri string, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, r)
	if err != nil {
		return fmt.Errorf("invalid http uri %q: %w", uri, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload to %s returned status %d", uri, resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
