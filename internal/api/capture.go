package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/kenneth/swift-decryption-gateway/internal/decrypt"
)

// responseCapture buffers a downstream response so its headers can be
// rewritten before anything reaches the client. Bodies are served unchanged;
// only headers are decrypted, so buffering the body is a straight copy.
type responseCapture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseCapture() *responseCapture {
	return &responseCapture{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (c *responseCapture) Header() http.Header {
	return c.header
}

func (c *responseCapture) WriteHeader(status int) {
	c.status = status
}

func (c *responseCapture) Write(b []byte) (int, error) {
	return c.body.Write(b)
}

// flattenHeaders converts an http.Header into the ordered pair sequence the
// reconciler consumes. Multi-valued headers contribute one pair per value.
func flattenHeaders(h http.Header) []decrypt.HeaderPair {
	var pairs []decrypt.HeaderPair
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, decrypt.HeaderPair{Name: name, Value: v})
		}
	}
	return pairs
}

// writePairs sends a captured response with a replacement header set.
func writePairs(w http.ResponseWriter, status int, pairs []decrypt.HeaderPair, body []byte) {
	for _, p := range pairs {
		w.Header().Add(p.Name, p.Value)
	}
	if w.Header().Get("Content-Length") != "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	w.Write(body)
}

// writeCaptured replays a captured response untouched.
func writeCaptured(w http.ResponseWriter, c *responseCapture) {
	for name, values := range c.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(c.status)
	w.Write(c.body.Bytes())
}
