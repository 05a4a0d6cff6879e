// handlers_media.go - Listing media upload and download handlers
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/storage"
)

// ByteCounter is told how many bytes were stored
type ByteCounter interface {
	Add(float64)
}

// MediaHandlerImpl implements the MediaHandler interface
type MediaHandlerImpl struct {
	store   storage.Store
	urls    *storage.MediaUploader
	counter ByteCounter
}

// NewMediaHandler creates a new media handler. counter may be nil.
func NewMediaHandler(store storage.Store, urls *storage.MediaUploader, counter ByteCounter) MediaHandler {
	return &MediaHandlerImpl{store: store, urls: urls, counter: counter}
}

// HandleUploadMedia accepts one multipart file under the "file" field
func (h *MediaHandlerImpl) HandleUploadMedia(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	contentType := file.Header.Get(echo.HeaderContentType)
	info, err := h.store.Save(c.Request().Context(), file.Filename, contentType, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	if h.counter != nil {
		h.counter.Add(float64(info.Size))
	}
	info.URL = h.urls.URL(info.ID)

	return c.JSON(http.StatusCreated, info)
}

// HandleGetMedia streams a stored blob
func (h *MediaHandlerImpl) HandleGetMedia(c echo.Context) error {
	id := c.Param("id")
	rc, info, err := h.store.Open(c.Request().Context(), id)
	if err != nil {
		if apiErr := translate(err); apiErr != nil && apiErr.Status == http.StatusNotFound {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to open file", err)
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	res.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	res.Header().Set(echo.HeaderContentType, contentType)
	res.WriteHeader(http.StatusOK)
	if c.Request().Method == http.MethodHead {
		return nil
	}
	_, err = io.Copy(res, rc)
	return err
}
