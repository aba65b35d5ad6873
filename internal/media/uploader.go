// Package media holds the blob host collaborators: the uploader client the
// engine sends image/audio payloads through, and the HTTP host that stores
// blobs in GridFS and serves them back by id.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"govibe/internal/common"
)

// Uploader pushes a blob to the media host and returns its stable URL.
type Uploader interface {
	Upload(ctx context.Context, content io.Reader, filename string, kind common.MediaFileType) (string, error)
}

// HTTPUploader posts multipart uploads to the media host:
// POST {base}/media/{kind}/upload, field "file", response {"url": "..."}.
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

func NewHTTPUploader(baseURL string) *HTTPUploader {
	return &HTTPUploader{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, content io.Reader, filename string, kind common.MediaFileType) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	url := fmt.Sprintf("%s/media/%s/upload", u.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload failed: %s: %s", resp.Status, body)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("bad upload response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}
	return out.URL, nil
}
