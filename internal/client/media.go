package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// Uploader sends wizard files to the media endpoint. It implements
// wizard.Uploader.
type Uploader struct {
	client *Client
}

// Uploader returns the media uploader of c.
func (c *Client) Uploader() *Uploader {
	return &Uploader{client: c}
}

// Upload streams f as a multipart "file" part and returns its public URL.
// The body is produced while it is sent, so a reader that counts bytes sees
// the transfer as it happens.
func (u *Uploader) Upload(ctx context.Context, f wizard.File) (string, error) {
	src, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writePart(mw, f, src))
	}()
	// Closing the read side unblocks the writer if the request ended early.
	finish := func() {
		pr.Close()
		<-written
	}

	req, err := u.client.newRequest(ctx, http.MethodPost, "/api/media", pr)
	if err != nil {
		finish()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := u.client.do(req)
	finish()
	if err != nil {
		return "", err
	}

	var info models.FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if info.URL == "" {
		return "", fmt.Errorf("upload %s: server returned no url", f.Name)
	}
	return info.URL, nil
}

func writePart(mw *multipart.Writer, f wizard.File, src io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(f.Name)))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
