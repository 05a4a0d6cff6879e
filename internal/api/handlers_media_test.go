package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/models"
)

type part struct {
	field       string
	name        string
	contentType string
	data        []byte
}

// multipartBody encodes parts and returns the body with its content type.
func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		ct := p.contentType
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		h.Set(echo.HeaderContentType, ct)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, path, token string, parts ...part) *httpResponse {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	h := http.Header{}
	h.Set(echo.HeaderContentType, ct)
	if token != "" {
		h.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := s.do(t, http.MethodPost, path, body, h)
	return &httpResponse{Code: rec.Code, Body: rec.Body.Bytes()}
}

type httpResponse struct {
	Code int
	Body []byte
}

func TestUploadAndServeMedia(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")

	res := s.upload(t, "/api/media", token, part{field: "file", name: "crop.png", contentType: "image/png", data: []byte("png-bytes")})
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))

	var info models.FileInfo
	require.NoError(t, json.Unmarshal(res.Body, &info))
	assert.Equal(t, "crop.png", info.Name)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "http://test.local/api/media/"+info.ID, info.URL)

	rec := s.doJSON(t, http.MethodGet, "/api/media/"+info.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "9", rec.Header().Get(echo.HeaderContentLength))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = s.doJSON(t, http.MethodHead, "/api/media/"+info.ID, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	metricsRec := s.doJSON(t, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, metricsRec.Body.String(), "kisan_media_bytes_saved_total 9")
}

func TestUploadMediaRequiresSession(t *testing.T) {
	s := newTestServer(t)

	res := s.upload(t, "/api/media", "", part{field: "file", name: "a.jpg", data: []byte("x")})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, 0, s.store.GetFileCount())
}

func TestUploadMediaMissingFile(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")

	res := s.upload(t, "/api/media", token, part{field: "other", name: "a.jpg", data: []byte("x")})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUploadMediaStoreFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")
	s.store.SaveErr = errors.New("disk full")

	res := s.upload(t, "/api/media", token, part{field: "file", name: "a.jpg", data: []byte("x")})
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestGetMediaFallbacks(t *testing.T) {
	s := newTestServer(t)
	s.store.AddFile("raw", "blob.bin", []byte{1, 2, 3})

	rec := s.doJSON(t, http.MethodGet, "/api/media/raw", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, echo.MIMEOctetStream, rec.Header().Get(echo.HeaderContentType))

	rec = s.doJSON(t, http.MethodGet, "/api/media/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
