package decrypt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
	"github.com/kenneth/swift-decryption-gateway/internal/keys"
)

// RemapUserMetadata scans raw response headers for the transient encrypted
// metadata namespace and rewrites each entry into the plaintext namespace,
// preserving the per-entry suffix.
//
// A per-entry decrypt or format failure drops that one header with a debug
// log and continues. Anything else (a bundle without the needed scope key, an
// unexpected internal error) aborts the whole scan with an error; the caller
// treats that as "no decrypted metadata available" and keeps serving the
// response.
func RemapUserMetadata(logger *logrus.Logger, raw []HeaderPair, bundle keys.KeyBundle, scope, transientPrefix, metaPrefix string) ([]HeaderPair, error) {
	key, ok := bundle[scope]
	if !ok {
		return nil, fmt.Errorf("key bundle is missing the %s key", scope)
	}

	var out []HeaderPair
	lowerPrefix := strings.ToLower(transientPrefix)
	for _, p := range raw {
		if !strings.HasPrefix(strings.ToLower(p.Name), lowerPrefix) {
			continue
		}
		suffix := p.Name[len(transientPrefix):]

		plaintext, err := crypto.DecryptValue(key, p.Value)
		if err != nil {
			var verr *crypto.ValueError
			if errors.As(err, &verr) {
				logger.WithError(err).WithField("header", p.Name).Debug("Dropping undecryptable metadata header")
				continue
			}
			return nil, err
		}
		out = append(out, HeaderPair{Name: metaPrefix + suffix, Value: plaintext})
	}
	return out, nil
}

// IsTransientHeader reports whether name belongs to a transient encrypted
// metadata namespace. Transient headers are consumed by the remap and never
// forwarded to the client.
func IsTransientHeader(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, strings.ToLower(ObjectTransientPrefix)) ||
		strings.HasPrefix(lower, strings.ToLower(ContainerTransientPrefix))
}
