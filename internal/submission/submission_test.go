package submission

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-matcher/internal/matcher"
)

type reply struct {
	body string
	err  error
}

type fakeScorer struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []matcher.SimilarityRequest
	before   func()
	after    func()
}

func (f *fakeScorer) Similarity(_ context.Context, req matcher.SimilarityRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	r := f.replies[req.CVID]
	f.mu.Unlock()

	if f.before != nil {
		f.before()
	}
	if f.after != nil {
		defer f.after()
	}

	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func (f *fakeScorer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var threeCVs = []CVRef{
	{ID: "c1", Name: "alice.pdf"},
	{ID: "c2", Name: "bob.pdf"},
	{ID: "c3", Name: "carol.pdf"},
}

func TestConcurrentIsolatesFailures(t *testing.T) {
	scorer := &fakeScorer{replies: map[string]reply{
		"c1": {body: `{"similarity":0.8}`},
		"c2": {err: &matcher.APIError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway", Body: "scoring service down"}},
		"c3": {body: `{"data":{"similarity":0.4}}`},
	}}

	s := New(scorer, &Config{Strategy: Concurrent}, zap.NewNop())
	results, err := s.Submit(context.Background(), "J1", "Go developer", threeCVs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}

	if r := byName["bob.pdf"]; r.Error != "scoring service down" || r.Score != nil {
		t.Fatalf("expected bob.pdf to fail with body text, got %+v", r)
	}
	if r := byName["alice.pdf"]; r.Failed() || r.Score == nil || *r.Score != 0.8 {
		t.Fatalf("unexpected alice.pdf result: %+v", r)
	}
	if r := byName["carol.pdf"]; r.Failed() || r.Score == nil || *r.Score != 0.4 {
		t.Fatalf("unexpected carol.pdf result: %+v", r)
	}

	for _, req := range scorer.requests {
		if req.CVInPath {
			t.Fatalf("concurrent strategy must use the body-addressed endpoint")
		}
		if req.JobID != "J1" || req.JobText != "Go developer" {
			t.Fatalf("unexpected request: %+v", req)
		}
		if req.RequestID == "" {
			t.Fatalf("expected a request id")
		}
	}
}

func TestConcurrentLaunchesAllBeforeWaiting(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(len(threeCVs))
	allIn := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allIn)
	}()

	scorer := &fakeScorer{
		replies: map[string]reply{},
		before: func() {
			arrived.Done()
			select {
			case <-allIn:
			case <-time.After(5 * time.Second):
			}
		},
	}

	s := New(scorer, nil, zap.NewNop())
	if _, err := s.Submit(context.Background(), "J1", "job", threeCVs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-allIn:
	default:
		t.Fatalf("expected every request to be in flight at once")
	}
}

func TestConcurrentRespectsMaxInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32

	scorer := &fakeScorer{
		replies: map[string]reply{},
		before: func() {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
		},
		after: func() { inFlight.Add(-1) },
	}

	cvs := make([]CVRef, 6)
	for i := range cvs {
		cvs[i] = CVRef{ID: string(rune('a' + i)), Name: "cv"}
	}

	s := New(scorer, &Config{Strategy: Concurrent, MaxInFlight: 2}, zap.NewNop())
	results, err := s.Submit(context.Background(), "J1", "job", cvs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(cvs) {
		t.Fatalf("expected %d results, got %d", len(cvs), len(results))
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 requests in flight, got %d", p)
	}
}

func TestSequentialContinuesAfterFailure(t *testing.T) {
	scorer := &fakeScorer{replies: map[string]reply{
		"c1": {err: &matcher.APIError{StatusCode: http.StatusInternalServerError, Status: "500"}},
		"c2": {body: `{"score":0.3}`},
		"c3": {err: errors.New("connection refused")},
	}}

	s := New(scorer, &Config{Strategy: Sequential}, zap.NewNop())
	results, err := s.Submit(context.Background(), "J1", "job", threeCVs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Error != "Request failed" {
		t.Fatalf("expected fallback message for empty body, got %q", results[0].Error)
	}
	if results[1].Score == nil || *results[1].Score != 0.3 {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if results[2].Error != "connection refused" {
		t.Fatalf("unexpected third result: %+v", results[2])
	}

	for i, req := range scorer.requests {
		if !req.CVInPath {
			t.Fatalf("sequential strategy must address the cv in the path")
		}
		if req.CVID != threeCVs[i].ID {
			t.Fatalf("expected request %d for %s, got %s", i, threeCVs[i].ID, req.CVID)
		}
	}
}

func TestSequentialStopsOnCancelledDelay(t *testing.T) {
	scorer := &fakeScorer{replies: map[string]reply{"c1": {body: `{"score":0.1}`}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(scorer, &Config{Strategy: Sequential, Delay: time.Minute}, zap.NewNop())
	results, err := s.Submit(ctx, "J1", "job", threeCVs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scorer.calls() != 1 {
		t.Fatalf("expected one request before the cancelled pause, got %d", scorer.calls())
	}
	if !results[1].Failed() || !results[2].Failed() {
		t.Fatalf("expected remaining cvs to report the cancellation: %+v", results)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		jobText string
		cvs     []CVRef
	}{
		{name: "empty job text", jobText: "", cvs: threeCVs},
		{name: "blank job text", jobText: "  \n", cvs: threeCVs},
		{name: "no cvs", jobText: "job", cvs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &fakeScorer{}
			s := New(scorer, nil, zap.NewNop())

			results, err := s.Submit(context.Background(), "J1", tt.jobText, tt.cvs)
			if !errors.Is(err, ErrNothingToSubmit) {
				t.Fatalf("expected ErrNothingToSubmit, got %v", err)
			}
			if len(results) != 1 || results[0].Error != MissingInputMessage {
				t.Fatalf("expected single error result, got %+v", results)
			}
			if scorer.calls() != 0 {
				t.Fatalf("expected no requests, got %d", scorer.calls())
			}
		})
	}
}

func TestUnknownShapeIsNoScore(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	scorer := &fakeScorer{replies: map[string]reply{
		"c1": {body: `{}`},
		"c2": {body: `{"score":"n/a"}`},
	}}

	s := New(scorer, nil, zap.New(core))
	results, err := s.Submit(context.Background(), "J1", "job", threeCVs[:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results[0].Failed() || results[0].Score != nil {
		t.Fatalf("expected no score and no error for unknown shape, got %+v", results[0])
	}
	if !results[1].Failed() {
		t.Fatalf("expected malformed score to be reported, got %+v", results[1])
	}

	if observed.FilterMessage("similarity response has no known score field").Len() != 1 {
		t.Fatalf("expected unknown shape to be logged")
	}
}

func TestParseStrategy(t *testing.T) {
	for raw, want := range map[string]Strategy{"": Concurrent, "Concurrent": Concurrent, " sequential ": Sequential} {
		got, err := ParseStrategy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}

	if _, err := ParseStrategy("parallel-ish"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
