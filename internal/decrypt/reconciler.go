package decrypt

import (
	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/keys"
)

// Reconciler assembles the final header set for an object response: it
// decrypts the ETag copies, cross-checks their consistency, merges in
// decrypted user metadata and passes every untouched header through.
type Reconciler struct {
	Logger *logrus.Logger
}

// BuildHeaders produces the outgoing header sequence from the raw captured
// response headers.
//
// objectKeys and containerKeys are the key bundles resolved for the request
// (either may be nil, and in the degraded read path the same bundle carries
// only the container key). On an ETag mismatch between the object-scope and
// container-scope copies it returns ErrInvalidKey and no headers.
func (rc *Reconciler) BuildHeaders(objectKeys, containerKeys keys.KeyBundle, raw []HeaderPair) ([]HeaderPair, error) {
	staged := newHeaderList()

	// Object-scope ETag. Decryption is required: a response whose canonical
	// checksum cannot be recovered must not be served.
	var objectETag string
	var haveObjectETag bool
	if key, ok := objectKeys[keys.ScopeObject]; ok {
		if encrypted := HeaderValue(raw, CryptoETagHeader); encrypted != "" {
			plaintext, err := DecryptHeader(rc.Logger, CryptoETagHeader, encrypted, key, true)
			if err != nil {
				return nil, err
			}
			objectETag = plaintext
			haveObjectETag = true
			staged.Add(ETagHeader, plaintext)
			staged.Add(OverrideETagHeader, plaintext)
		}
	}

	// Container-scope ETag copy. Optional on its own, but when both copies
	// decrypted they must agree; a mismatch means a wrong or corrupted key
	// and the response is refused outright.
	if key, ok := containerKeys[keys.ScopeContainer]; ok {
		if encrypted := HeaderValue(raw, OverrideETagHeader); encrypted != "" {
			plaintext, err := DecryptHeader(rc.Logger, OverrideETagHeader, encrypted, key, false)
			if err != nil {
				return nil, err
			}
			if plaintext != "" {
				if haveObjectETag && plaintext != objectETag {
					rc.Logger.WithFields(logrus.Fields{
						"object_etag":    objectETag,
						"container_etag": plaintext,
					}).Debug("Failed ETag verification")
					return nil, ErrInvalidKey
				}
				staged.Set(OverrideETagHeader, plaintext)
				// Container copy is the only source of truth when the object
				// scope was unavailable.
				staged.Add(ETagHeader, plaintext)
			}
		}
	}

	// Encrypted user metadata moves back to the plaintext namespace.
	// Decrypted entries win over any unexpected pre-existing plaintext
	// header of the same name via the staged-first dedup below.
	if _, ok := containerKeys[keys.ScopeObject]; ok {
		remapped, err := RemapUserMetadata(rc.Logger, raw, containerKeys, keys.ScopeObject,
			ObjectTransientPrefix, ObjectMetaPrefix)
		if err != nil {
			rc.Logger.WithError(err).Warn("user metadata remap failed")
		}
		for _, p := range remapped {
			staged.Add(p.Name, p.Value)
		}
	} else if containerKeys != nil {
		// Degraded container-only bundle: user metadata was encrypted under
		// the object key, so it stays undecryptable here.
		rc.Logger.Debug("Not able to decrypt user metadata")
	}

	// Everything untouched passes through, except transient-namespace
	// headers (consumed above) and names already staged.
	for _, p := range raw {
		if IsTransientHeader(p.Name) {
			continue
		}
		staged.Add(p.Name, p.Value)
	}

	return staged.Pairs(), nil
}

// BuildContainerHeaders produces the outgoing header sequence for a container
// response. Containers carry no encrypted ETag, so this is a pure metadata
// remap: encrypted container user metadata moves back to the plaintext
// namespace and everything else passes through.
func (rc *Reconciler) BuildContainerHeaders(bundle keys.KeyBundle, raw []HeaderPair) ([]HeaderPair, error) {
	staged := newHeaderList()

	if _, ok := bundle[keys.ScopeContainer]; ok {
		remapped, err := RemapUserMetadata(rc.Logger, raw, bundle, keys.ScopeContainer,
			ContainerTransientPrefix, ContainerMetaPrefix)
		if err != nil {
			rc.Logger.WithError(err).Warn("container metadata remap failed")
		}
		for _, p := range remapped {
			staged.Add(p.Name, p.Value)
		}
	}

	for _, p := range raw {
		if IsTransientHeader(p.Name) {
			continue
		}
		staged.Add(p.Name, p.Value)
	}

	return staged.Pairs(), nil
}
