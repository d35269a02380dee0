package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/cvtext"
	"github.com/spigell/cv-matcher/internal/filtering"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/reconcile"
	"github.com/spigell/cv-matcher/internal/submission"
)

var (
	ErrNoJobSelected    = errors.New("no job selected")
	ErrJobFieldsMissing = errors.New("job title and description are required")
)

// Backend is the part of the matcher API the dashboard drives.
type Backend interface {
	ListJobs(ctx context.Context) (*matcher.Jobs, error)
	CreateJob(ctx context.Context, title, description string) error
	DeleteJob(ctx context.Context, id string) error
	UploadCV(ctx context.Context, jobID, name string, contents io.Reader) error
	DeleteCV(ctx context.Context, cvID string) error
	DownloadCV(ctx context.Context, cvID string, w io.Writer) (int64, error)
}

type Options struct {
	Intake      *filtering.Config
	DownloadDir string
}

// State is a copy of what the dashboard currently shows.
type State struct {
	Jobs       *matcher.Jobs
	SelectedID string
	Selected   *reconcile.JobView
	Results    []submission.Result
}

// Controller holds the dashboard state. Operations may overlap; the last
// reconciliation to finish wins.
type Controller struct {
	backend   Backend
	submitter *submission.Submitter
	opts      Options
	logger    *zap.Logger

	mu         sync.Mutex
	jobs       *matcher.Jobs
	selectedID string
	selected   *reconcile.JobView
	results    []submission.Result
}

func New(backend Backend, submitter *submission.Submitter, opts *Options, log *zap.Logger) *Controller {
	c := &Controller{
		backend:   backend,
		submitter: submitter,
		logger:    logger.WithFields(log),
	}
	if opts != nil {
		c.opts = *opts
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Jobs:       c.jobs,
		SelectedID: c.selectedID,
		Selected:   c.selected,
		Results:    append([]submission.Result(nil), c.results...),
	}
}

// RefreshJobs fetches the job list. On failure the cached list is kept.
func (c *Controller) RefreshJobs(ctx context.Context) (*matcher.Jobs, error) {
	jobs, err := c.backend.ListJobs(ctx)
	if err != nil {
		c.logger.Error("failed to load jobs", zap.Error(err))
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	c.mu.Lock()
	c.jobs = jobs
	c.mu.Unlock()

	c.logger.Debug("jobs loaded", zap.Int("jobs", jobs.Len()))
	return jobs, nil
}

// SelectJob makes id the selected job and builds its view from the cached list.
func (c *Controller) SelectJob(ctx context.Context, id string) (*reconcile.JobView, error) {
	c.mu.Lock()
	jobs := c.jobs
	c.mu.Unlock()

	if jobs == nil {
		var err error
		if jobs, err = c.RefreshJobs(ctx); err != nil {
			return nil, err
		}
	}

	view, err := reconcile.Reconcile(id, jobs, c.logger)
	if errors.Is(err, reconcile.ErrJobNotFound) {
		c.mu.Lock()
		if c.selectedID == id {
			c.clearSelection()
		}
		c.mu.Unlock()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.selectedID = id
	c.selected = view
	c.results = nil
	c.mu.Unlock()

	return view, nil
}

// CalculateSimilarity scores every CV of the selected job against jobText,
// then refreshes the job list and rebuilds the selected view from it. The
// refresh runs even when some scoring requests failed.
func (c *Controller) CalculateSimilarity(ctx context.Context, jobText string) ([]submission.Result, error) {
	c.mu.Lock()
	jobID := c.selectedID
	var cvs []submission.CVRef
	if c.selected != nil {
		for _, cv := range c.selected.CVs {
			cvs = append(cvs, submission.CVRef{ID: cv.ID, Name: cv.DisplayName()})
		}
	}
	c.mu.Unlock()

	results, err := c.submitter.Submit(ctx, jobID, jobText, cvs)
	if err != nil {
		c.publish(results)
		return results, err
	}

	if err := c.reconcileSelected(ctx, jobID); err != nil {
		c.logger.Warn("keeping previous job view after similarity batch",
			zap.String(logger.FieldJobID, jobID),
			zap.Error(err),
		)
	}

	c.publish(results)
	return results, nil
}

func (c *Controller) publish(results []submission.Result) {
	c.mu.Lock()
	c.results = results
	c.mu.Unlock()
}

// RefreshSelected refreshes the job list and rebuilds the selected view.
// Without a selection it only refreshes the list.
func (c *Controller) RefreshSelected(ctx context.Context) error {
	c.mu.Lock()
	jobID := c.selectedID
	c.mu.Unlock()

	return c.reconcileSelected(ctx, jobID)
}

// clearSelection drops the selected job. The caller holds c.mu.
func (c *Controller) clearSelection() {
	c.selectedID = ""
	c.selected = nil
	c.results = nil
}

// reconcileSelected refreshes the job list and rebuilds the view of jobID.
// A failed fetch leaves the cached list and view untouched. A job missing
// from the fresh list is deselected.
func (c *Controller) reconcileSelected(ctx context.Context, jobID string) error {
	jobs, err := c.RefreshJobs(ctx)
	if err != nil {
		return err
	}
	if jobID == "" {
		return nil
	}

	view, err := reconcile.Reconcile(jobID, jobs, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selectedID != jobID {
		return nil
	}

	switch {
	case errors.Is(err, reconcile.ErrJobNotFound):
		c.clearSelection()
		return err
	case err != nil:
		return err
	}

	c.selected = view
	return nil
}

// CreateJob creates a job and refreshes the job list.
func (c *Controller) CreateJob(ctx context.Context, title, description string) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return ErrJobFieldsMissing
	}

	if err := c.backend.CreateJob(ctx, title, description); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	c.logger.Info("job created", zap.String("title", title))

	_, err := c.RefreshJobs(ctx)
	return err
}

// DeleteJob deletes a job and deselects it if it was selected.
func (c *Controller) DeleteJob(ctx context.Context, id string) error {
	if err := c.backend.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	c.logger.Info("job deleted", zap.String(logger.FieldJobID, id))

	c.mu.Lock()
	if c.selectedID == id {
		c.clearSelection()
	}
	c.mu.Unlock()

	_, err := c.RefreshJobs(ctx)
	return err
}

// Upload is the outcome of one file upload.
type Upload struct {
	Name    string
	Preview string
	Error   string
}

// UploadCVs uploads local files to the selected job, one request per file.
// Files rejected by the intake filters are skipped; a failed upload does not
// stop the others. With force set, files already attached are sent again.
func (c *Controller) UploadCVs(ctx context.Context, paths []string, force bool) ([]Upload, error) {
	c.mu.Lock()
	jobID := c.selectedID
	var uploaded []string
	if c.selected != nil {
		for _, cv := range c.selected.CVs {
			uploaded = append(uploaded, cv.DisplayName())
		}
	}
	c.mu.Unlock()

	if jobID == "" {
		return nil, ErrNoJobSelected
	}

	log := c.logger.With(zap.String(logger.FieldJobID, jobID))

	files, err := filtering.Collect(paths)
	if err != nil {
		return nil, err
	}

	steps := filtering.DefaultSteps()
	if force {
		filtering.DisableByName(steps, "already_uploaded", "force flag is set")
	}

	files, err = filtering.Run(ctx, c.opts.Intake, filtering.Deps{Logger: log, Uploaded: uploaded}, steps, files)
	if err != nil {
		return nil, fmt.Errorf("filter cv files: %w", err)
	}

	for _, status := range filtering.Describe(steps) {
		log.Debug("intake filter",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}
	log.Debug("cv files to upload", zap.Strings("files", files.Names()))

	uploads := make([]Upload, 0, files.Len())
	for _, file := range files.Items {
		u := Upload{Name: file.Name, Preview: cvtext.Preview(file.Path)}

		if err := c.uploadFile(ctx, jobID, file); err != nil {
			log.Error("upload failed", zap.String("file", file.Name), zap.Error(err))
			u.Error = uploadMessage(err)
		} else {
			log.Info("cv uploaded", zap.String("file", file.Name), zap.String("preview", u.Preview))
		}

		uploads = append(uploads, u)
	}

	if err := c.reconcileSelected(ctx, jobID); err != nil {
		log.Warn("keeping previous job view after upload", zap.Error(err))
	}

	return uploads, nil
}

func (c *Controller) uploadFile(ctx context.Context, jobID string, file *filtering.File) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.backend.UploadCV(ctx, jobID, file.Name, f)
}

func uploadMessage(err error) string {
	var apiErr *matcher.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// DeleteCV deletes a CV and rebuilds the selected view.
func (c *Controller) DeleteCV(ctx context.Context, cvID string) error {
	c.mu.Lock()
	jobID := c.selectedID
	name := cvID
	if cv := c.selected.FindCV(cvID); cv != nil {
		name = cv.DisplayName()
	}
	c.mu.Unlock()

	if err := c.backend.DeleteCV(ctx, cvID); err != nil {
		return fmt.Errorf("delete cv %s: %w", name, err)
	}
	c.logger.Info("cv deleted", zap.String(logger.FieldCVID, cvID), zap.String("name", name))

	return c.reconcileSelected(ctx, jobID)
}

// DownloadCV saves the stored CV file into the download directory and
// returns its path.
func (c *Controller) DownloadCV(ctx context.Context, cvID string) (string, error) {
	name, err := matcher.DownloadFileName(cvID)
	if err != nil {
		return "", err
	}

	dir := c.opts.DownloadDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, path); err != nil || rel != name {
		return "", fmt.Errorf("%w: %q", matcher.ErrUnsafeCVID, cvID)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	n, err := c.backend.DownloadCV(ctx, cvID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("download cv %s: %w", cvID, err)
	}

	c.logger.Info("cv downloaded",
		zap.String(logger.FieldCVID, cvID),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}
