package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/utils"
)

// MissingInputMessage is the single entry reported when there is nothing to score.
const MissingInputMessage = "Please provide job text and at least one CV."

const maxBodyLogLength = 200

// ErrNothingToSubmit is returned when the job text or the CV list is empty.
// No request is issued in that case.
var ErrNothingToSubmit = errors.New("job text and at least one cv are required")

// Strategy selects how scoring requests of one batch are issued.
type Strategy string

const (
	// Concurrent launches every request before waiting for any of them.
	Concurrent Strategy = "concurrent"
	// Sequential waits for each request before starting the next one.
	// Meant for backends sensitive to ordering or rate limits.
	Sequential Strategy = "sequential"
)

func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", Concurrent:
		return Concurrent, nil
	case Sequential:
		return Sequential, nil
	default:
		return "", fmt.Errorf("unknown submission strategy %q (use %s or %s)", raw, Concurrent, Sequential)
	}
}

// CVRef is the part of a CV the submitter needs.
type CVRef struct {
	ID   string
	Name string
}

// Result is the outcome of one scoring attempt. Score is nil when the request
// failed or the backend returned no score.
type Result struct {
	CVID  string   `json:"cvId,omitempty"`
	Name  string   `json:"name,omitempty"`
	Score *float64 `json:"score"`
	Error string   `json:"error,omitempty"`
}

func (r Result) Failed() bool { return r.Error != "" }

// Scorer sends one scoring request. *matcher.Client implements it.
type Scorer interface {
	Similarity(ctx context.Context, req matcher.SimilarityRequest) ([]byte, error)
}

type Config struct {
	Strategy Strategy
	// MaxInFlight caps concurrent requests. Zero means no cap.
	MaxInFlight int
	// Delay is the pause between sequential requests.
	Delay time.Duration
}

type Submitter struct {
	scorer Scorer
	config Config
	logger *zap.Logger
}

func New(scorer Scorer, cfg *Config, log *zap.Logger) *Submitter {
	s := &Submitter{
		scorer: scorer,
		config: Config{Strategy: Concurrent},
		logger: logger.WithFields(log),
	}
	if cfg != nil {
		s.config = *cfg
		if s.config.Strategy == "" {
			s.config.Strategy = Concurrent
		}
	}
	return s
}

// Submit scores every CV against jobText. Per-CV failures are reported in the
// results and never abort the batch; the only returned error is ErrNothingToSubmit.
// Results keep the order of cvs.
func (s *Submitter) Submit(ctx context.Context, jobID, jobText string, cvs []CVRef) ([]Result, error) {
	if strings.TrimSpace(jobText) == "" || len(cvs) == 0 {
		return []Result{{Error: MissingInputMessage}}, ErrNothingToSubmit
	}

	batchID := uuid.NewString()
	log := logger.WithBatch(s.logger, jobID, batchID)

	log.Info("submitting cvs for similarity",
		zap.String("strategy", string(s.config.Strategy)),
		zap.Int("cvs", len(cvs)),
		zap.Int("max_in_flight", s.config.MaxInFlight),
	)

	started := time.Now()

	var results []Result
	switch s.config.Strategy {
	case Sequential:
		results = s.sequential(ctx, log, jobID, jobText, cvs)
	default:
		results = s.concurrent(ctx, log, jobID, jobText, cvs)
	}

	scored, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Failed():
			failed++
		case r.Score != nil:
			scored++
		}
	}

	log.Info("similarity batch completed",
		zap.Int("scored", scored),
		zap.Int("failed", failed),
		zap.Int("without_score", len(results)-scored-failed),
		zap.Duration("took", time.Since(started)),
	)

	return results, nil
}

func (s *Submitter) sequential(ctx context.Context, log *zap.Logger, jobID, jobText string, cvs []CVRef) []Result {
	results := make([]Result, len(cvs))

	for i, cv := range cvs {
		if i > 0 {
			if err := utils.WaitFor(ctx, s.config.Delay); err != nil {
				for j := i; j < len(cvs); j++ {
					results[j] = Result{CVID: cvs[j].ID, Name: cvs[j].Name, Error: err.Error()}
				}
				return results
			}
		}

		results[i] = s.scoreOne(ctx, log, matcher.SimilarityRequest{
			JobText:  jobText,
			CVID:     cv.ID,
			JobID:    jobID,
			CVInPath: true,
		}, cv)
	}

	return results
}

func (s *Submitter) concurrent(ctx context.Context, log *zap.Logger, jobID, jobText string, cvs []CVRef) []Result {
	results := make([]Result, len(cvs))

	var g errgroup.Group
	if s.config.MaxInFlight > 0 {
		g.SetLimit(s.config.MaxInFlight)
	}

	for i, cv := range cvs {
		g.Go(func() error {
			results[i] = s.scoreOne(ctx, log, matcher.SimilarityRequest{
				JobText: jobText,
				CVID:    cv.ID,
				JobID:   jobID,
			}, cv)
			return nil
		})
	}

	// scoreOne never returns an error to the group.
	_ = g.Wait()

	return results
}

func (s *Submitter) scoreOne(ctx context.Context, log *zap.Logger, req matcher.SimilarityRequest, cv CVRef) Result {
	req.RequestID = uuid.NewString()
	result := Result{CVID: cv.ID, Name: cv.Name}

	log = log.With(
		zap.String(logger.FieldCVID, cv.ID),
		zap.String(logger.FieldRequestID, req.RequestID),
	)

	body, err := s.scorer.Similarity(ctx, req)
	if err != nil {
		var apiErr *matcher.APIError
		if errors.As(err, &apiErr) {
			result.Error = apiErr.Message()
		} else {
			result.Error = err.Error()
		}
		log.Warn("similarity request failed", zap.Error(err))
		return result
	}

	score, err := matcher.DecodeScore(body)
	switch {
	case errors.Is(err, matcher.ErrUnknownShape):
		log.Warn("similarity response has no known score field",
			zap.String("response_preview", utils.TruncateForLog(string(body), maxBodyLogLength)),
		)
		return result
	case err != nil:
		log.Warn("similarity response is malformed", zap.Error(err))
		result.Error = err.Error()
		return result
	}

	result.Score = score.Value
	if score.Value != nil {
		log.Debug("cv scored", zap.Float64("similarity", *score.Value), zap.Stringer("shape", score.Shape))
	}

	return result
}
