package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
)

// ErrJobNotFound is returned when the job is absent from the fresh list,
// usually because it was deleted meanwhile. Callers clear the selected view.
var ErrJobNotFound = errors.New("job not found in job list")

// Advisory is a missing keyword hint produced by the backend for a job.
type Advisory struct {
	Requirement string   `json:"requirement" mapstructure:"requirement"`
	Advice      string   `json:"advice" mapstructure:"advice"`
	Status      string   `json:"status" mapstructure:"status"`
	Score       *float64 `json:"score" mapstructure:"score"`
}

// JobView is the selected job as displayed. CVs are ordered by similarity.
type JobView struct {
	ID          string
	Title       string
	Description string
	CVs         []*matcher.CV
	Advisories  []Advisory
	// DataErrors lists server entries that could not be decoded and were left out.
	DataErrors []string
}

// FindCV returns the CV with the given id or nil.
func (v *JobView) FindCV(id string) *matcher.CV {
	if v == nil {
		return nil
	}
	for _, cv := range v.CVs {
		if cv.ID == id {
			return cv
		}
	}
	return nil
}

// Reconcile builds the view of jobID from a freshly fetched job list.
func Reconcile(jobID string, jobs *matcher.Jobs, log *zap.Logger) (*JobView, error) {
	log = logger.WithFields(log).With(zap.String(logger.FieldJobID, jobID))

	job := jobs.FindByID(jobID)
	if job == nil {
		log.Info("selected job is gone from the job list")
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	view := &JobView{
		ID:          jobID,
		Title:       job.Title,
		Description: job.Description,
	}

	raw, wrapper, err := cvCollection(job.CVs)
	if err != nil {
		view.DataErrors = append(view.DataErrors, err.Error())
	}

	if view.Title == "" {
		view.Title = stringField(wrapper, "jobTitle")
	}
	if view.Description == "" {
		view.Description = stringField(wrapper, "jobDescription")
	}

	for i, entry := range raw {
		cv, err := decodeCV(entry)
		if err != nil {
			view.DataErrors = append(view.DataErrors, fmt.Sprintf("cv #%d: %s", i, err))
			continue
		}
		view.CVs = append(view.CVs, cv)
	}
	SortBySimilarity(view.CVs)

	for i, entry := range job.MissingKeywords {
		advisories, err := decodeAdvisories(entry)
		if err != nil {
			view.DataErrors = append(view.DataErrors, fmt.Sprintf("missing keyword #%d: %s", i, err))
			continue
		}
		view.Advisories = append(view.Advisories, advisories...)
	}

	for _, e := range view.DataErrors {
		log.Warn("dropped malformed job data", zap.String("reason", e))
	}

	log.Debug("job reconciled",
		zap.Int("cvs", len(view.CVs)),
		zap.Int("advisories", len(view.Advisories)),
		zap.Int("data_errors", len(view.DataErrors)),
	)

	return view, nil
}

// SortBySimilarity orders CVs by similarity, highest first. A CV without a
// score is ordered as if it scored zero; ties keep their server order.
func SortBySimilarity(cvs []*matcher.CV) {
	sort.SliceStable(cvs, func(i, j int) bool {
		return orderingScore(cvs[i]) > orderingScore(cvs[j])
	})
}

func orderingScore(cv *matcher.CV) float64 {
	if cv == nil || cv.Similarity == nil {
		return 0
	}
	return *cv.Similarity
}

// cvCollection resolves the shapes the backend uses for a job's CVs. The
// returned wrapper is the enclosing object, if there was one.
func cvCollection(data any) ([]any, map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil, nil
	case []any:
		return v, nil, nil
	case map[string]any:
		if list, ok := v["CVs"].([]any); ok {
			return list, v, nil
		}
		if list, ok := v["data"].([]any); ok {
			return list, v, nil
		}
		if single, ok := v["CVs"]; ok && single != nil {
			return []any{single}, v, nil
		}
		return nil, v, nil
	default:
		return nil, nil, fmt.Errorf("unexpected cv collection of type %T", data)
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func decodeCV(entry any) (*matcher.CV, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", entry)
	}

	var cv matcher.CV
	if err := weakDecode(m, &cv); err != nil {
		return nil, err
	}
	if cv.ID == "" {
		cv.ID = cv.MongoID
	}
	if cv.ID == "" {
		return nil, errors.New("cv has no id")
	}

	return &cv, nil
}

// decodeAdvisories accepts an advisory object, or a string holding a JSON
// object or a JSON list of objects. Anything else is rejected; strings are
// never repaired.
func decodeAdvisories(entry any) ([]Advisory, error) {
	switch v := entry.(type) {
	case map[string]any:
		a, err := decodeAdvisory(v)
		if err != nil {
			return nil, err
		}
		return []Advisory{a}, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &parsed); err != nil {
			return nil, fmt.Errorf("invalid serialized advisory: %w", err)
		}
		if list, ok := parsed.([]any); ok {
			out := make([]Advisory, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("expected an advisory object, got %T", item)
				}
				a, err := decodeAdvisory(m)
				if err != nil {
					return nil, err
				}
				out = append(out, a)
			}
			return out, nil
		}
		m, ok := parsed.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an advisory object, got %T", parsed)
		}
		a, err := decodeAdvisory(m)
		if err != nil {
			return nil, err
		}
		return []Advisory{a}, nil
	default:
		return nil, fmt.Errorf("expected an advisory, got %T", entry)
	}
}

func decodeAdvisory(m map[string]any) (Advisory, error) {
	var a Advisory
	if err := weakDecode(m, &a); err != nil {
		return Advisory{}, err
	}
	if strings.TrimSpace(a.Requirement) == "" {
		return Advisory{}, errors.New("advisory has no requirement")
	}
	return a, nil
}

func weakDecode(input map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
