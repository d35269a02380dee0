package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	cvUploadPath   = "/api/cv/upload"
	cvDeletePath   = "/api/cv/delete"
	cvDownloadPath = "/api/cv/download"

	cvFileField = "cvFile"
)

// CV is one uploaded CV attached to a job. Similarity is nil until the CV was scored.
type CV struct {
	ID           string   `json:"id" mapstructure:"id"`
	MongoID      string   `json:"-" mapstructure:"_id"`
	OriginalName string   `json:"originalName,omitempty" mapstructure:"originalName"`
	Name         string   `json:"name,omitempty" mapstructure:"name"`
	Size         int64    `json:"size,omitempty" mapstructure:"size"`
	Similarity   *float64 `json:"similarity,omitempty" mapstructure:"similarity"`
	FilePath     string   `json:"filePath,omitempty" mapstructure:"filePath"`
}

// DisplayName prefers the file name the CV was uploaded with.
func (c *CV) DisplayName() string {
	if c.OriginalName != "" {
		return c.OriginalName
	}
	return c.Name
}

// Downloadable reports whether the backend stored the file.
func (c *CV) Downloadable() bool {
	return strings.TrimSpace(c.FilePath) != ""
}

// UploadCV attaches a CV file to a job.
func (c *Client) UploadCV(ctx context.Context, jobID, name string, contents io.Reader) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	return c.postMultipart(ctx, cvUploadPath,
		map[string]string{"jobId": jobID},
		FormFile{Field: cvFileField, Name: name, Contents: contents},
	)
}

func (c *Client) DeleteCV(ctx context.Context, cvID string) error {
	if cvID == "" {
		return fmt.Errorf("cv id is required")
	}

	req, err := c.newRequest(ctx, http.MethodDelete, cvDeletePath, url.Values{"cvId": {cvID}}, nil)
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}

// DownloadCV streams the stored CV file into w.
func (c *Client) DownloadCV(ctx context.Context, cvID string, w io.Writer) (int64, error) {
	if cvID == "" {
		return 0, fmt.Errorf("cv id is required")
	}

	return c.stream(ctx, cvDownloadPath, url.Values{"cvId": {cvID}}, w)
}

// ErrUnsafeCVID is returned when a CV id cannot be used as part of a local file name.
var ErrUnsafeCVID = errors.New("cv id is not safe for a file name")

// DownloadFileName is the local file name a downloaded CV is saved under.
// Ids that would leave the target directory are rejected.
func DownloadFileName(cvID string) (string, error) {
	if cvID == "" || cvID == "." || strings.Contains(cvID, "..") || strings.ContainsAny(cvID, `/\`+"\x00") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeCVID, cvID)
	}
	return "cv_" + cvID + ".pdf", nil
}
