package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kisan-sarthi/backend/internal/wizard"
)

// ErrForeignMedia is returned for a media URL this uploader did not issue.
var ErrForeignMedia = errors.New("media URL not served here")

// MediaUploader stores wizard files in a Store and reports their public URL.
type MediaUploader struct {
	store   Store
	baseURL string
}

// NewMediaUploader returns an uploader whose URLs are <baseURL>/api/media/<id>.
func NewMediaUploader(store Store, baseURL string) *MediaUploader {
	return &MediaUploader{store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

// URL returns the public URL of a stored blob.
func (u *MediaUploader) URL(id string) string {
	return u.baseURL + "/api/media/" + id
}

// Resolve returns the id of the stored blob behind a URL from URL.
func (u *MediaUploader) Resolve(ctx context.Context, url string) (string, error) {
	id, ok := strings.CutPrefix(url, u.baseURL+"/api/media/")
	if !ok || id == "" || strings.ContainsAny(id, "/?#") {
		return "", fmt.Errorf("%w: %s", ErrForeignMedia, url)
	}
	if _, err := u.store.Get(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Upload implements wizard.Uploader.
func (u *MediaUploader) Upload(ctx context.Context, f wizard.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	info, err := u.store.Save(ctx, f.Name, f.ContentType, rc)
	if err != nil {
		return "", err
	}
	return u.URL(info.ID), nil
}
