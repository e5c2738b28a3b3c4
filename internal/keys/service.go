package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
)

const (
	// ScopeObject is the key scope protecting object-level values.
	ScopeObject = "object"
	// ScopeContainer is the key scope protecting container-level values.
	ScopeContainer = "container"
)

// DefaultScopes is the full scope set requested on the first key fetch.
var DefaultScopes = []string{ScopeObject, ScopeContainer}

// KeyBundle maps a scope name to its raw key. A bundle is produced once per
// request and consumed read-only; it is never persisted.
type KeyBundle map[string][]byte

// Path locates the resource a request addresses within the storage namespace.
type Path struct {
	Account   string
	Container string
	Object    string
}

// ContainerPath returns the container-scope derivation path.
func (p Path) ContainerPath() string {
	return "/" + p.Account + "/" + p.Container
}

// ObjectPath returns the object-scope derivation path.
func (p Path) ObjectPath() string {
	return "/" + p.Account + "/" + p.Container + "/" + p.Object
}

// Service fetches decryption keys for a subset of scopes. Implementations
// must return *AccessDeniedError when the caller is not entitled to the
// requested keys so that the resolver can apply its read-path fallback.
type Service interface {
	FetchKeys(ctx context.Context, path Path, scopes []string, keyID *crypto.KeyID) (KeyBundle, error)
}

// AccessDeniedError signals that the key service refused to hand out keys.
type AccessDeniedError struct {
	Path   string
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("key access denied for %s: %s", e.Path, e.Reason)
}

// IsAccessDenied reports whether err is a key-service denial.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}

func validScope(scope string) bool {
	switch scope {
	case ScopeObject, ScopeContainer:
		return true
	}
	return false
}

func scopeList(scopes []string) string {
	return strings.Join(scopes, ",")
}
