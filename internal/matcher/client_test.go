package matcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/session"
)

func newTestClient(t *testing.T, router *mux.Router) *Client {
	t.Helper()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	sess, err := session.New("test-token")
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	c := New(sess, zap.NewNop())
	c.SetAPIURL(srv.URL + "/api/")
	return c
}

func requireAuth(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("unexpected authorization header: %q", got)
	}
}

func TestListJobsDecodesLooseEntries(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		w.Write([]byte(`{"jobs":[
			{"id":"J1","title":"Go dev","description":"Go","CVs":[{"id":"c1","originalName":"a.pdf","similarity":0.5}]},
			{"_id":42,"title":"Ops","CVs":{"CVs":[]},"missingKeywords":["{\"requirement\":\"k8s\"}"]}
		]}`))
	}).Methods(http.MethodGet)

	jobs, err := newTestClient(t, router).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.Len() != 2 {
		t.Fatalf("expected 2 jobs, got %d", jobs.Len())
	}
	if jobs.FindByID("J1") == nil {
		t.Fatalf("expected job J1")
	}
	ops := jobs.FindByID("42")
	if ops == nil {
		t.Fatalf("expected job 42 decoded from _id")
	}
	if len(ops.MissingKeywords) != 1 {
		t.Fatalf("expected 1 raw advisory, got %d", len(ops.MissingKeywords))
	}
}

func TestListJobsMissingJobsKey(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}).Methods(http.MethodGet)

	jobs, err := newTestClient(t, router).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs.Len() != 0 {
		t.Fatalf("expected no jobs, got %d", jobs.Len())
	}
}

func TestGzipResponse(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(`{"jobs":[{"id":"J1","title":"Go dev"}]}`))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}).Methods(http.MethodGet)

	jobs, err := newTestClient(t, router).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs.Len() != 1 {
		t.Fatalf("expected 1 job, got %d", jobs.Len())
	}
}

func TestSimilarityEndpoints(t *testing.T) {
	var bodies []map[string]string
	var paths []string

	handler := func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		bodies = append(bodies, payload)
		paths = append(paths, r.URL.Path)
		if r.Header.Get(requestIDHeader) != "req-1" {
			t.Errorf("expected request id header")
		}
		w.Write([]byte(`{"similarity":0.5}`))
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/similarity", handler).Methods(http.MethodPost)
	router.HandleFunc("/api/similarity/{cvId}", handler).Methods(http.MethodPost)
	c := newTestClient(t, router)

	if _, err := c.Similarity(context.Background(), SimilarityRequest{JobText: "go", CVID: "c1", JobID: "J1", RequestID: "req-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Similarity(context.Background(), SimilarityRequest{JobText: "go", CVID: "c2", JobID: "J1", CVInPath: true, RequestID: "req-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if paths[0] != "/api/similarity" || bodies[0]["cvId"] != "c1" || bodies[0]["jobId"] != "J1" {
		t.Fatalf("unexpected concurrent-style request: %s %v", paths[0], bodies[0])
	}
	if paths[1] != "/api/similarity/c2" {
		t.Fatalf("unexpected path-scoped request path: %s", paths[1])
	}
	if _, ok := bodies[1]["cvId"]; ok || bodies[1]["job_text"] != "go" {
		t.Fatalf("path-scoped body must carry only job_text: %v", bodies[1])
	}
}

func TestAPIErrorKeepsBody(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/similarity", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cv text missing", http.StatusUnprocessableEntity)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodDelete)
	c := newTestClient(t, router)

	_, err := c.Similarity(context.Background(), SimilarityRequest{JobText: "go", CVID: "c1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Message() != "cv text missing\n" {
		t.Fatalf("unexpected message: %q", apiErr.Message())
	}

	err = c.DeleteJob(context.Background(), "J1")
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message() != "Request failed" {
		t.Fatalf("expected fallback message, got %q", apiErr.Message())
	}
}

func TestCVLifecycle(t *testing.T) {
	var uploaded []string
	var deleted string

	router := mux.NewRouter()
	router.HandleFunc("/api/cv/upload", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("jobId") != "J1" {
			t.Errorf("unexpected jobId: %q", r.FormValue("jobId"))
		}
		f, hdr, err := r.FormFile(cvFileField)
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		uploaded = append(uploaded, hdr.Filename+":"+string(data))
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/cv/delete", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Query().Get("cvId")
	}).Methods(http.MethodDelete)
	router.HandleFunc("/api/cv/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-" + r.URL.Query().Get("cvId")))
	}).Methods(http.MethodGet)

	c := newTestClient(t, router)
	ctx := context.Background()

	if err := c.UploadCV(ctx, "J1", "alice.pdf", bytes.NewReader([]byte("pdf-bytes"))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(uploaded) != 1 || uploaded[0] != "alice.pdf:pdf-bytes" {
		t.Fatalf("unexpected upload: %v", uploaded)
	}

	if err := c.DeleteCV(ctx, "c 1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "c 1" {
		t.Fatalf("unexpected deleted id: %q", deleted)
	}

	var buf bytes.Buffer
	n, err := c.DownloadCV(ctx, "c1", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(buf.Len()) || buf.String() != "%PDF-c1" {
		t.Fatalf("unexpected download: %d %q", n, buf.String())
	}

	if name, err := DownloadFileName("c1"); err != nil || name != "cv_c1.pdf" {
		t.Fatalf("unexpected download file name: %s, %v", name, err)
	}
}

func TestAPIErrorMessageKeepsRawBody(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: "", want: "Request failed"},
		{body: " \n", want: " \n"},
		{body: "quota exceeded", want: "quota exceeded"},
	}

	for _, tt := range tests {
		e := &APIError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests", Body: tt.body}
		if got := e.Message(); got != tt.want {
			t.Fatalf("Message() for body %q = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestDownloadFileNameRejectsPaths(t *testing.T) {
	for _, id := range []string{"", "x/../../escaped", "..", `a\b`, "/etc/passwd", "a\x00b"} {
		if _, err := DownloadFileName(id); !errors.Is(err, ErrUnsafeCVID) {
			t.Fatalf("expected ErrUnsafeCVID for %q, got %v", id, err)
		}
	}
}
