package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"go.uber.org/zap"
)

type uploadError struct{}

func (uploadError) Error() string       { return "upload failed" }
func (uploadError) Kind() string        { return apperr.KindAdapter }
func (uploadError) UserMessage() string { return "We couldn't upload your document. Please try again." }

var ErrUploadFailed error = uploadError{}

// MaxFileSize bounds a single uploaded document.
const MaxFileSize = 10 << 20

type Uploader interface {
	// Upload stores body and returns its public URL.
	Upload(ctx context.Context, name, contentType string, body io.Reader) (string, error)
}

type httpUploader struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewHTTPUploader(url, token string) Uploader {
	if url == "" {
		logger.L().Warn("upload URL is empty")
	}
	return &httpUploader{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type uploadResponse struct {
	FileURL string `json:"file_url"`
}

func (u *httpUploader) Upload(ctx context.Context, name, contentType string, body io.Reader) (fileURL string, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("adapter", "upload"),
		zap.String("method", "Upload"),
		zap.String("file", name),
	)

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("upload", timer, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	n, err := io.Copy(part, io.LimitReader(body, MaxFileSize+1))
	if err != nil {
		log.Error("failed to read upload body", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if n > MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrUploadFailed, name, MaxFileSize)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		log.Error("upload request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("upload returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return "", fmt.Errorf("%w: upload error: %s", ErrUploadFailed, string(bodyBytes))
	}

	var res uploadResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil || res.FileURL == "" {
		log.Error("upload response missing file_url", zap.ByteString("response", bodyBytes))
		return "", fmt.Errorf("%w: missing file_url", ErrUploadFailed)
	}

	log.Info("file uploaded", zap.Int64("bytes", n))
	return res.FileURL, nil
}
