package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/audit"
	"github.com/kenneth/swift-decryption-gateway/internal/config"
	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
	"github.com/kenneth/swift-decryption-gateway/internal/decrypt"
	"github.com/kenneth/swift-decryption-gateway/internal/keys"
	"github.com/kenneth/swift-decryption-gateway/internal/metrics"
)

// Decrypter is the response-side decryption stage. It forwards every request
// to the next handler in the chain, captures the response for the paths it
// understands and rewrites the encrypted headers before they reach the client.
type Decrypter struct {
	keys       keys.Service
	resolver   *decrypt.Resolver
	reconciler *decrypt.Reconciler
	policies   *config.PolicyManager
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	audit      audit.Logger
}

// NewDecrypter creates the decryption stage. policies and auditLogger may be
// nil when those features are disabled.
func NewDecrypter(
	keySvc keys.Service,
	resolver *decrypt.Resolver,
	reconciler *decrypt.Reconciler,
	policies *config.PolicyManager,
	logger *logrus.Logger,
	m *metrics.Metrics,
	auditLogger audit.Logger,
) *Decrypter {
	return &Decrypter{
		keys:       keySvc,
		resolver:   resolver,
		reconciler: reconciler,
		policies:   policies,
		logger:     logger,
		metrics:    m,
		audit:      auditLogger,
	}
}

// Middleware wires the decrypter in front of the next pipeline stage.
func (d *Decrypter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, isObject, ok := splitPath(r.URL.Path)
		if !ok {
			// Not a storage path this stage understands; leave it alone.
			next.ServeHTTP(w, r)
			return
		}

		info := decrypt.RequestInfo{
			Method:   r.Method,
			Path:     path,
			Override: d.overrideFor(r, path.Account),
		}

		switch {
		case isObject && info.IsRead():
			d.handleObject(w, r, next, info)
		case !isObject && r.Method == http.MethodGet:
			d.handleContainer(w, r, next, info)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// handleObject decrypts the header set of an object GET or HEAD response.
func (d *Decrypter) handleObject(w http.ResponseWriter, r *http.Request, next http.Handler, info decrypt.RequestInfo) {
	start := time.Now()

	captured := newResponseCapture()
	next.ServeHTTP(captured, r)

	d.metrics.RecordHTTPRequest(r.Method, "object", captured.status, time.Since(start))

	if info.Override || captured.status >= http.StatusMultipleChoices {
		// Overridden requests and error responses carry nothing to decrypt.
		writeCaptured(w, captured)
		return
	}

	// The crypto meta travels with the encrypted ETag; it names the root
	// secret version the value was written under.
	meta, err := crypto.ParseMeta(captured.header.Get(decrypt.CryptoETagHeader))
	if err != nil {
		var verr *crypto.ValueError
		if !errors.As(err, &verr) {
			d.writeError(w, info, "object", err, start)
			return
		}
		d.logger.WithError(err).Debug("Ignoring malformed crypto meta on ETag header")
		meta = nil
	}

	bundle, err := d.resolver.Resolve(r.Context(), info, meta)
	if err != nil {
		d.writeError(w, info, "object", err, start)
		return
	}
	if bundle == nil {
		d.metrics.RecordDecryption("object", metrics.OutcomeNotRequired, time.Since(start))
		writeCaptured(w, captured)
		return
	}

	raw := flattenHeaders(captured.header)
	pairs, err := d.reconciler.BuildHeaders(bundle, bundle, raw)
	if err != nil {
		d.writeError(w, info, "object", err, start)
		return
	}
	if n := countRemapped(raw, pairs, decrypt.ObjectTransientPrefix, decrypt.ObjectMetaPrefix); n > 0 {
		d.metrics.RecordMetadataRemapped(n)
	}

	outcome := metrics.OutcomeDecrypted
	if _, ok := bundle[keys.ScopeObject]; !ok {
		outcome = metrics.OutcomeDegraded
		d.metrics.RecordKeyScopeFallback()
		if d.audit != nil {
			d.audit.LogKeyFallback(info.Path.Account, info.Path.Container, info.Path.Object)
		}
	}
	d.metrics.RecordDecryption("object", outcome, time.Since(start))
	if d.audit != nil {
		d.audit.LogDecrypt(info.Path.Account, info.Path.Container, info.Path.Object,
			getClientIP(r), getRequestID(r), outcome, true, nil, time.Since(start))
	}

	writePairs(w, captured.status, pairs, captured.body.Bytes())
}

// handleContainer rewrites encrypted container user metadata on listing
// responses. Containers have no ETag to verify, so key denial here simply
// serves the response untouched.
func (d *Decrypter) handleContainer(w http.ResponseWriter, r *http.Request, next http.Handler, info decrypt.RequestInfo) {
	start := time.Now()

	captured := newResponseCapture()
	next.ServeHTTP(captured, r)

	d.metrics.RecordHTTPRequest(r.Method, "container", captured.status, time.Since(start))

	if info.Override || captured.status >= http.StatusMultipleChoices {
		writeCaptured(w, captured)
		return
	}

	bundle, err := d.keys.FetchKeys(r.Context(), info.Path, []string{keys.ScopeContainer}, nil)
	if err != nil {
		if keys.IsAccessDenied(err) {
			d.logger.WithError(err).WithField("path", info.Path.ContainerPath()).
				Debug("Container keys denied, serving listing undecrypted")
			d.metrics.RecordDecryption("container", metrics.OutcomeDegraded, time.Since(start))
			writeCaptured(w, captured)
			return
		}
		d.writeError(w, info, "container", err, start)
		return
	}

	raw := flattenHeaders(captured.header)
	pairs, err := d.reconciler.BuildContainerHeaders(bundle, raw)
	if err != nil {
		d.writeError(w, info, "container", err, start)
		return
	}
	if n := countRemapped(raw, pairs, decrypt.ContainerTransientPrefix, decrypt.ContainerMetaPrefix); n > 0 {
		d.metrics.RecordMetadataRemapped(n)
	}

	d.metrics.RecordDecryption("container", metrics.OutcomeDecrypted, time.Since(start))
	writePairs(w, captured.status, pairs, captured.body.Bytes())
}

// writeError converts a handler error into the client response.
func (d *Decrypter) writeError(w http.ResponseWriter, info decrypt.RequestInfo, handler string, err error, start time.Time) {
	d.metrics.RecordDecryption(handler, metrics.OutcomeError, time.Since(start))

	var herr *decrypt.HTTPError
	if errors.As(err, &herr) {
		if herr == decrypt.ErrInvalidKey {
			d.metrics.RecordIntegrityFailure()
			if d.audit != nil {
				d.audit.LogIntegrityFailure(info.Path.Account, info.Path.Container, info.Path.Object, "", "")
			}
		}
		d.logger.WithError(err).WithField("path", info.Path.ObjectPath()).Warn("Refusing response")
		herr.Write(w)
		return
	}

	d.logger.WithError(err).WithField("path", info.Path.ObjectPath()).Error("Decryption stage failed")
	if d.audit != nil {
		d.audit.LogDecrypt(info.Path.Account, info.Path.Container, info.Path.Object,
			"", "", metrics.OutcomeError, false, err, time.Since(start))
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// overrideFor reports whether decryption is disabled for this request, either
// by an inner pipeline stage via the override header or by account policy.
func (d *Decrypter) overrideFor(r *http.Request, account string) bool {
	if isTrueValue(r.Header.Get(decrypt.OverrideFlagHeader)) {
		return true
	}
	return d.policies != nil && d.policies.SkipDecryptionFor(account)
}

// countRemapped counts output headers in the plaintext metadata namespace
// that were recovered from a transient entry of the captured response.
func countRemapped(raw, out []decrypt.HeaderPair, transientPrefix, metaPrefix string) int {
	n := 0
	for _, p := range out {
		if len(p.Name) <= len(metaPrefix) || !strings.EqualFold(p.Name[:len(metaPrefix)], metaPrefix) {
			continue
		}
		suffix := p.Name[len(metaPrefix):]
		if decrypt.HeaderValue(raw, transientPrefix+suffix) != "" {
			n++
		}
	}
	return n
}

// isTrueValue mirrors the permissive boolean parsing used across the storage
// pipeline for flag headers.
func isTrueValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "t", "y":
		return true
	}
	return false
}

// splitPath parses a /v1/account/container[/object] storage path. Anything
// else, including malformed paths, is not an error but a passthrough.
func splitPath(urlPath string) (path keys.Path, isObject bool, ok bool) {
	trimmed := strings.TrimPrefix(urlPath, "/")
	parts := strings.SplitN(trimmed, "/", 4)
	if len(parts) < 3 || parts[0] != "v1" || parts[1] == "" || parts[2] == "" {
		return keys.Path{}, false, false
	}

	path = keys.Path{Account: parts[1], Container: parts[2]}
	if len(parts) == 4 && parts[3] != "" {
		path.Object = parts[3]
		return path, true, true
	}
	return path, false, true
}
