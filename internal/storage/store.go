// Package storage keeps uploaded listing media.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/kisan-sarthi/backend/internal/models"
)

// ErrFileNotFound is returned when no blob has the requested id.
var ErrFileNotFound = errors.New("file not found")

// Store defines the interface for media blob storage.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (*models.FileInfo, error)
	Get(ctx context.Context, id string) (*models.FileInfo, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *models.FileInfo, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]*models.FileInfo, error)
}
