package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
)

// DocumentKey names an uploaded identity document. The extension is kept
// only if it is short and alphanumeric.
func DocumentKey(accountID, fileName string, now time.Time) string {
	key := fmt.Sprintf("%s-%d", accountID, now.UnixNano())
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" || len(ext) > 8 {
		return key
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return key
		}
	}
	return key + "." + ext
}

// DiskStore keeps blobs as files in one directory and serves them under a
// public base URL.
type DiskStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewDiskStore(dir, baseURL string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxBytes: maxBytes}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Upload writes r under key. Nothing is left behind if the content exceeds
// the size limit or the write fails.
func (s *DiskStore) Upload(ctx context.Context, key string, r io.Reader) error {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: invalid blob key %q", models.ErrValidation, key)
	}
	if err := ctx.Err(); err != nil {
		return models.StoreError("upload blob", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return models.StoreError("upload blob", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return models.StoreError("upload blob", err)
	}
	if n > s.maxBytes {
		return models.ErrDocumentTooLarge
	}
	if n == 0 {
		return fmt.Errorf("%w: empty document", models.ErrValidation)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return models.StoreError("upload blob", err)
	}
	return nil
}

func (s *DiskStore) PublicURL(key string) string {
	return s.baseURL + "/" + url.PathEscape(key)
}
