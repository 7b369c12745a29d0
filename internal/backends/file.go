package backends

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// FileBackend serves file:// URIs from the local filesystem.
type FileBackend struct{}

func NewFileBackend() *FileBackend {
	return &FileBackend{}
}

func (b *FileBackend) Download(ctx context.Context, uri string, w io.Writer) error {
	path, err := filePathFromURI(uri)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: The specified input file cannot be found: %s", ErrSourceNotFound, uri)
		}
		return fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return nil
}

func (b *FileBackend) Upload(ctx context.Context, uri string, r io.Reader) error {
	path, err := filePathFromURI(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", uri, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", uri, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", uri, err)
	}
	return f.Sync()
}

func filePathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid file uri %q: %w", uri, err)
	}
	// file:///abs/path has an empty host; file://host/path is not
	// supported.
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file uri %q must not name a remote host", uri)
	}
	if u.Path == "" {
		return "", fmt.Errorf("file uri %q has no path", uri)
	}
	return u.Path, nil
}
