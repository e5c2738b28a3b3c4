package decrypt

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
	"github.com/kenneth/swift-decryption-gateway/internal/keys"
)

// RequestInfo carries the request facts the resolver needs. The override flag
// is an explicit field populated by the dispatcher rather than an ambient
// environment lookup.
type RequestInfo struct {
	Method   string
	Path     keys.Path
	Override bool
}

// IsRead reports whether the request uses a read verb. Only read requests may
// degrade to an undecrypted response when keys are unavailable.
func (i RequestInfo) IsRead() bool {
	return i.Method == http.MethodGet || i.Method == http.MethodHead
}

// ObjectInfo is the sysmeta view of an object, as returned by a HEAD-style
// introspection of the next pipeline stage. Keys are the lower-cased sysmeta
// names with the namespace prefix stripped (e.g. "crypto-etag").
type ObjectInfo struct {
	Sysmeta map[string]string
}

// InfoFetcher looks up object sysmeta for a request.
type InfoFetcher interface {
	GetObjectInfo(ctx context.Context, info RequestInfo) (ObjectInfo, error)
}

// Resolver decides whether a response needs decryption and obtains the key
// bundle for it, with the container-scope fallback for read verbs.
type Resolver struct {
	Keys   keys.Service
	Info   InfoFetcher
	Logger *logrus.Logger
}

// Resolve returns the key bundle to decrypt with, or a nil bundle when no
// decryption is required (object never encrypted, override set, or a read
// request degraded after key denial). A key-service denial on a non-read verb
// propagates as the error; the caller must fail the request.
func (r *Resolver) Resolve(ctx context.Context, info RequestInfo, meta *crypto.Meta) (keys.KeyBundle, error) {
	if info.Override {
		r.Logger.Debug("No decryption is necessary because of override")
		return nil, nil
	}

	objInfo, err := r.Info.GetObjectInfo(ctx, info)
	if err != nil {
		return nil, err
	}
	if _, ok := objInfo.Sysmeta[sysmetaCryptoMarker]; !ok {
		// Object was never encrypted.
		return nil, nil
	}

	var keyID *crypto.KeyID
	if meta != nil {
		keyID = meta.KeyID
	}

	bundle, err := r.Keys.FetchKeys(ctx, info.Path, keys.DefaultScopes, keyID)
	if err == nil {
		return bundle, nil
	}
	if !keys.IsAccessDenied(err) {
		return nil, err
	}
	if !info.IsRead() {
		// Non-read requests must not silently degrade.
		return nil, err
	}

	// One-shot fallback to container scope; a second denial degrades to
	// serving the response undecrypted rather than failing the read.
	bundle, retryErr := r.Keys.FetchKeys(ctx, info.Path, []string{keys.ScopeContainer}, keyID)
	if retryErr != nil {
		if !keys.IsAccessDenied(retryErr) {
			return nil, retryErr
		}
		r.Logger.WithError(retryErr).WithField("path", info.Path.ObjectPath()).
			Debug("Key fetch denied at both scopes, serving response undecrypted")
		return nil, nil
	}
	r.Logger.WithField("path", info.Path.ObjectPath()).
		Debug("Object-scope keys denied, degraded to container scope")
	return bundle, nil
}
