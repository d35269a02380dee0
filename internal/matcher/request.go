package matcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/spigell/cv-matcher/internal/utils"

	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	requestIDHeader = "X-Request-ID"
	maxErrorLogLen  = 200
)

// APIError is returned for every non-2xx response. Body keeps the raw response text.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %s", e.Status)
	}
	return fmt.Sprintf("bad status: %s: %s", e.Status, utils.TruncateForLog(e.Body, maxErrorLogLen))
}

// Message is the text shown next to a failed item.
func (e *APIError) Message() string {
	if e.Body == "" {
		return "Request failed"
	}
	return e.Body
}

// FormFile is a file part of a multipart upload.
type FormFile struct {
	Field    string
	Name     string
	Contents io.Reader
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, body)
	if err != nil {
		return nil, err
	}

	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	return c.setHeaders(req), nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// body returns the decoded response body. The caller closes resp.Body.
func body(resp *http.Response) (io.Reader, func() error, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp.Body, func() error { return nil }, nil
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return gz, gz.Close, nil
}

// do sends the request and returns the whole response body.
// Non-2xx statuses are reported as *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, closeReader, err := body(resp)
	if err != nil {
		return nil, err
	}
	defer closeReader()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}

	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", contentType)

	data, err := c.do(req)
	if err != nil {
		return err
	}

	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}

// sendJSON encodes payload as the request body and returns the raw response body.
func (c *Client) sendJSON(ctx context.Context, method, path string, payload any, headers http.Header) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, nil, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return c.do(req)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, file FormFile) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, val := range fields {
		field, err := w.CreateFormField(key)
		if err != nil {
			return err
		}

		if _, err = io.Copy(field, strings.NewReader(val)); err != nil {
			return err
		}
	}

	part, err := w.CreateFormFile(file.Field, file.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Contents); err != nil {
		return fmt.Errorf("copy %s: %w", file.Name, err)
	}

	if err := w.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, err = c.do(req)
	return err
}

// stream copies a successful response body into w.
func (c *Client) stream(ctx context.Context, path string, q url.Values, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.request(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	reader, closeReader, err := body(resp)
	if err != nil {
		return 0, err
	}
	defer closeReader()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(reader)
		return 0, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(data)}
	}

	return io.Copy(w, reader)
}
