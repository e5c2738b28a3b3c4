package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Upstream forwards HTTP requests to the next pipeline stage with original
// headers intact. The decrypter sits in front of it and rewrites the response
// headers on the way back out.
type Upstream struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewUpstream creates a forwarder for the given next-stage endpoint.
func NewUpstream(endpoint string, timeout time.Duration, logger *logrus.Logger) (*Upstream, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("upstream endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream endpoint: %w", err)
	}

	return &Upstream{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Do forwards a request derived from r to the upstream and returns the raw
// response. Hop-by-hop headers are dropped; everything else, including the
// inter-stage sysmeta headers, passes through untouched.
func (u *Upstream) Do(r *http.Request) (*http.Response, error) {
	target := &url.URL{
		Scheme:   u.baseURL.Scheme,
		Host:     u.baseURL.Host,
		Path:     singleJoin(u.baseURL.Path, r.URL.Path),
		RawQuery: r.URL.RawQuery,
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header)
	if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

// ServeHTTP makes the upstream usable as the terminal handler of the
// middleware chain.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := u.Do(r)
	if err != nil {
		u.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Upstream request failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		u.logger.WithError(err).Debug("Failed to stream upstream response body")
	}
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

func singleJoin(base, path string) string {
	switch {
	case base == "" || base == "/":
		return path
	case strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/"):
		return base + path[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/"):
		return base + "/" + path
	}
	return base + path
}
