package matcher

import (
	"net/http"
	"strings"
	"time"

	"github.com/spigell/cv-matcher/internal/session"

	"go.uber.org/zap"
)

const (
	apiURL         = "http://localhost:5000"
	userAgent      = "spigell/cv-matcher"
	defaultTimeout = 30 * time.Second
)

// Client talks to the matching backend. All authenticated calls carry the
// bearer token of the injected session.
type Client struct {
	session    *session.Session
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(sess *session.Session, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		session: sess,
		logger:  logger,
		APIURL:  apiURL,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		UserAgent: userAgent,
	}
}

// SetAPIURL overrides the backend base URL. A trailing slash or /api suffix is dropped
// since every path already starts with /api.
func (c *Client) SetAPIURL(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	raw = strings.TrimRight(raw, "/")
	raw = strings.TrimSuffix(raw, "/api")
	c.APIURL = raw
}
