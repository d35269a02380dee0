package matcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const similarityPath = "/api/similarity"

// SimilarityRequest asks the backend to score one CV against a job description.
type SimilarityRequest struct {
	JobText string `json:"job_text"`
	CVID    string `json:"cvId,omitempty"`
	JobID   string `json:"jobId,omitempty"`

	// CVInPath addresses /api/similarity/<cvId> and sends only job_text in the body.
	CVInPath  bool   `json:"-"`
	RequestID string `json:"-"`
}

// Similarity sends one scoring request and returns the raw response body.
// Use DecodeScore to read the score out of it.
func (c *Client) Similarity(ctx context.Context, req SimilarityRequest) ([]byte, error) {
	path := similarityPath
	payload := req

	if req.CVInPath {
		if req.CVID == "" {
			return nil, fmt.Errorf("cv id is required")
		}
		path = similarityPath + "/" + url.PathEscape(req.CVID)
		payload = SimilarityRequest{JobText: req.JobText}
	}

	var headers http.Header
	if req.RequestID != "" {
		headers = http.Header{requestIDHeader: {req.RequestID}}
	}

	return c.sendJSON(ctx, http.MethodPost, path, payload, headers)
}
