package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/cache"
	"github.com/kenneth/swift-decryption-gateway/internal/decrypt"
	"github.com/kenneth/swift-decryption-gateway/internal/metrics"
)

// sysmetaPrefix is the object system metadata header namespace.
const sysmetaPrefix = "X-Object-Sysmeta-"

// InfoClient looks up object sysmeta by issuing an internal HEAD subrequest
// to the next pipeline stage. Results are cached by object path.
type InfoClient struct {
	upstream *Upstream
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewInfoClient creates an object-info client. infoCache and m may be nil to
// disable caching and lookup metrics.
func NewInfoClient(upstream *Upstream, infoCache cache.Cache, m *metrics.Metrics, logger *logrus.Logger) *InfoClient {
	return &InfoClient{
		upstream: upstream,
		cache:    infoCache,
		metrics:  m,
		logger:   logger,
	}
}

// GetObjectInfo returns the sysmeta view of the object a request addresses.
// A missing object yields empty sysmeta, not an error; only an unreachable
// or failing upstream is an error.
func (c *InfoClient) GetObjectInfo(ctx context.Context, info decrypt.RequestInfo) (decrypt.ObjectInfo, error) {
	path := "/v1" + info.Path.ObjectPath()

	if c.cache != nil {
		if entry, ok := c.cache.Get(ctx, path); ok {
			if c.metrics != nil {
				c.metrics.RecordObjectInfoLookup("cache")
			}
			return decrypt.ObjectInfo{Sysmeta: entry.Sysmeta}, nil
		}
	}

	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, path, nil)
	if err != nil {
		return decrypt.ObjectInfo{}, fmt.Errorf("failed to create info subrequest: %w", err)
	}
	// The subrequest must come back verbatim even if another decrypter sits
	// between this stage and the backend.
	headReq.Header.Set(decrypt.OverrideFlagHeader, "true")

	resp, err := c.upstream.Do(headReq)
	if err != nil {
		return decrypt.ObjectInfo{}, fmt.Errorf("object info lookup failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return decrypt.ObjectInfo{}, fmt.Errorf("object info lookup returned status %d", resp.StatusCode)
	}

	if c.metrics != nil {
		c.metrics.RecordObjectInfoLookup("upstream")
	}

	sysmeta := extractSysmeta(resp.Header)
	if c.cache != nil {
		if err := c.cache.Set(ctx, path, sysmeta, 0); err != nil {
			c.logger.WithError(err).Debug("Failed to cache object info")
		}
	}
	return decrypt.ObjectInfo{Sysmeta: sysmeta}, nil
}

// extractSysmeta collects X-Object-Sysmeta-* headers into a map keyed by the
// lower-cased suffix, e.g. "crypto-etag".
func extractSysmeta(header http.Header) map[string]string {
	sysmeta := make(map[string]string)
	for name, values := range header {
		if !strings.HasPrefix(name, sysmetaPrefix) || len(values) == 0 {
			continue
		}
		sysmeta[strings.ToLower(name[len(sysmetaPrefix):])] = values[0]
	}
	return sysmeta
}
