package matcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mitchellh/mapstructure"
)

const jobsPath = "/api/jobs"

type Jobs struct {
	Items []*Job
}

// Job is the backend's job as listed by GET /api/jobs. CVs and MissingKeywords
// are kept undecoded because the backend sends them in several shapes.
type Job struct {
	ID              string `json:"id" mapstructure:"id"`
	MongoID         string `json:"-" mapstructure:"_id"`
	Title           string `json:"title" mapstructure:"title"`
	Description     string `json:"description" mapstructure:"description"`
	CVs             any    `json:"CVs,omitempty" mapstructure:"CVs"`
	MissingKeywords []any  `json:"missingKeywords,omitempty" mapstructure:"missingKeywords"`
}

type jobsResponse struct {
	Jobs []map[string]any `json:"jobs"`
}

// ListJobs returns all jobs of the authenticated employer.
func (c *Client) ListJobs(ctx context.Context) (*Jobs, error) {
	var resp jobsResponse
	if err := c.getJSON(ctx, jobsPath, nil, &resp); err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(resp.Jobs))
	for i, raw := range resp.Jobs {
		job, err := DecodeJob(raw)
		if err != nil {
			return nil, fmt.Errorf("decode job #%d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	return &Jobs{Items: jobs}, nil
}

// DecodeJob decodes one loosely typed job entry.
func DecodeJob(raw map[string]any) (*Job, error) {
	var job Job

	cfg := &mapstructure.DecoderConfig{
		Result:           &job,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	if job.ID == "" {
		job.ID = job.MongoID
	}

	return &job, nil
}

// CreateJob creates a job with the given title and description.
func (c *Client) CreateJob(ctx context.Context, title, description string) error {
	payload := map[string]string{
		"title":       title,
		"description": description,
	}

	_, err := c.sendJSON(ctx, http.MethodPost, jobsPath, payload, nil)
	return err
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("job id is required")
	}

	_, err := c.sendJSON(ctx, http.MethodDelete, jobsPath+"/"+url.PathEscape(id), nil, nil)
	return err
}

func (j *Jobs) Len() int {
	if j == nil {
		return 0
	}
	return len(j.Items)
}

func (j *Jobs) FindByID(id string) *Job {
	if j == nil {
		return nil
	}
	for _, job := range j.Items {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (j *Jobs) Titles() []string {
	titles := make([]string, 0, j.Len())
	if j == nil {
		return titles
	}
	for _, job := range j.Items {
		titles = append(titles, job.Title)
	}
	return titles
}
