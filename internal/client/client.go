package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/version"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "trackctl/"+version.Short())

	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// IsAuthError reports whether err is a 401 or 403 from the API.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// Submit streams the multipart form to POST /v1/uploads.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req == nil || req.AudioPath == "" {
		return nil, fmt.Errorf("audio file is required")
	}

	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer func() { _ = audio.Close() }()

	var cover *os.File
	if req.CoverPath != "" {
		cover, err = os.Open(req.CoverPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cover: %w", err)
		}
		defer func() { _ = cover.Close() }()
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	errCh := make(chan error, 1)

	go func() {
		err := writeSubmitForm(writer, req, audio, cover)
		if err == nil {
			err = writer.Close()
		}
		_ = pw.CloseWithError(err)
		errCh <- err
	}()

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/uploads", pr, writer.FormDataContentType())
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The server may reject before reading the whole body; its answer wins.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		_ = pr.Close()
		return nil, parseError(resp)
	}
	if writeErr := <-errCh; writeErr != nil {
		return nil, fmt.Errorf("failed to write multipart form: %w", writeErr)
	}

	var result SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

func writeSubmitForm(w *multipart.Writer, req *SubmitRequest, audio, cover *os.File) error {
	fields := []struct{ name, value string }{
		{"uploadId", req.UploadID},
		{"title", req.Title},
		{"artistId", req.ArtistID},
		{"albumId", req.AlbumID},
		{"genreId", req.GenreID},
		{"status", req.Status},
	}
	if req.Duration != nil {
		fields = append(fields, struct{ name, value string }{"duration", strconv.Itoa(*req.Duration)})
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return err
		}
	}

	if err := writeFilePart(w, "audio", audio, req.Progress); err != nil {
		return err
	}
	if cover != nil {
		if err := writeFilePart(w, "cover", cover, req.Progress); err != nil {
			return err
		}
	}
	return nil
}

func writeFilePart(w *multipart.Writer, field string, f *os.File, progress io.Writer) error {
	name := filepath.Base(f.Name())

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", ContentTypeFor(name))

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	var src io.Reader = f
	if progress != nil {
		src = io.TeeReader(f, progress)
	}
	_, err = io.Copy(part, src)
	return err
}

// ContentTypeFor guesses a part content type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

func (c *Client) GetStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	var status UploadStatus
	if err := c.getJSON(ctx, "/v1/uploads/"+url.PathEscape(uploadID)+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	var track Track
	if err := c.getJSON(ctx, "/v1/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// WaitForUpload polls the status endpoint until the upload is terminal or timeout elapses.
func (c *Client) WaitForUpload(ctx context.Context, uploadID string, pollInterval, timeout time.Duration) (*UploadStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := c.GetStatus(ctx, uploadID)
			if err != nil {
				return nil, err
			}
			if status.IsTerminal() {
				return status, nil
			}
		}
	}
}
