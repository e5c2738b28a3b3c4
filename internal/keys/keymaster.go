package keys

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
)

// minSecretSize is the minimum decoded root secret length.
const minSecretSize = 32

// Keymaster derives per-resource scope keys from versioned root secrets.
// Each scope key is HKDF-SHA256(root secret, info = derivation path), so the
// object and container keys for a resource are independent and neither
// reveals the root secret. Secret versions allow decrypting values written
// before a rotation: the value's crypto meta names the secret id it was
// written under.
type Keymaster struct {
	mu       sync.RWMutex
	secrets  map[string][]byte
	activeID string
	logger   *logrus.Logger
}

// NewKeymaster creates a keymaster from base64-encoded root secrets.
func NewKeymaster(encodedSecrets map[string]string, activeID string, logger *logrus.Logger) (*Keymaster, error) {
	if logger == nil {
		logger = logrus.New()
	}
	k := &Keymaster{logger: logger}
	if err := k.Reload(encodedSecrets, activeID); err != nil {
		return nil, err
	}
	return k, nil
}

// Reload atomically replaces the root secret set. In-flight requests keep the
// bundle they already fetched; only subsequent fetches see the new secrets.
func (k *Keymaster) Reload(encodedSecrets map[string]string, activeID string) error {
	if len(encodedSecrets) == 0 {
		return fmt.Errorf("at least one root secret is required")
	}
	if activeID == "" {
		return fmt.Errorf("active secret id is required")
	}

	decoded := make(map[string][]byte, len(encodedSecrets))
	for id, enc := range encodedSecrets {
		secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(enc))
		if err != nil {
			return fmt.Errorf("root secret %q is not valid base64: %w", id, err)
		}
		if len(secret) < minSecretSize {
			return fmt.Errorf("root secret %q too short: need at least %d bytes, got %d", id, minSecretSize, len(secret))
		}
		decoded[id] = secret
	}
	if _, ok := decoded[activeID]; !ok {
		return fmt.Errorf("active secret id %q not present in secret set", activeID)
	}

	k.mu.Lock()
	k.secrets = decoded
	k.activeID = activeID
	k.mu.Unlock()

	k.logger.WithFields(logrus.Fields{
		"secret_ids": len(decoded),
		"active_id":  activeID,
	}).Info("Keymaster secrets loaded")
	return nil
}

// ActiveSecretID returns the id of the secret used for new writes.
func (k *Keymaster) ActiveSecretID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.activeID
}

// FetchKeys derives the requested scope keys. A keyID naming an unknown
// secret version is an access denial, not an internal error: the caller may
// legitimately hold data written under a secret this deployment no longer
// carries.
func (k *Keymaster) FetchKeys(ctx context.Context, path Path, scopes []string, keyID *crypto.KeyID) (KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := k.rootSecret(keyID, path)
	if err != nil {
		return nil, err
	}

	objectPath := path.ObjectPath()
	containerPath := path.ContainerPath()
	if keyID != nil && keyID.Path != "" {
		// The value records the path it was encrypted under, which wins over
		// the request path (e.g. for copied or versioned objects).
		objectPath = keyID.Path
		containerPath = parentPath(keyID.Path)
	}

	bundle := make(KeyBundle, len(scopes))
	for _, scope := range scopes {
		if !validScope(scope) {
			return nil, fmt.Errorf("unknown key scope %q", scope)
		}
		derivePath := containerPath
		if scope == ScopeObject {
			derivePath = objectPath
		}
		key, err := deriveKey(secret, derivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s key: %w", scope, err)
		}
		bundle[scope] = key
	}

	k.logger.WithFields(logrus.Fields{
		"path":   containerPath,
		"scopes": scopeList(scopes),
	}).Debug("Derived decryption keys")
	return bundle, nil
}

// rootSecret picks the root secret version named by keyID, defaulting to the
// active one.
func (k *Keymaster) rootSecret(keyID *crypto.KeyID, path Path) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	id := k.activeID
	if keyID != nil && keyID.SecretID != "" {
		id = keyID.SecretID
	}
	secret, ok := k.secrets[id]
	if !ok {
		return nil, &AccessDeniedError{
			Path:   path.ContainerPath(),
			Reason: fmt.Sprintf("unknown root secret id %q", id),
		}
	}
	return secret, nil
}

// deriveKey expands a root secret into a scope key bound to a derivation path.
func deriveKey(secret []byte, path string) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(path))
	key := make([]byte, crypto.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// parentPath strips the last segment from a derivation path.
func parentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return trimmed
	}
	return trimmed[:idx]
}
