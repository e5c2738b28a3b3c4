package decrypt

import "strings"

// Header names shared with the write-side encrypter. These are an external
// contract and must match byte for byte.
const (
	// CryptoETagHeader carries the object-scope encrypted copy of the
	// plaintext ETag.
	CryptoETagHeader = "X-Object-Sysmeta-Crypto-Etag"
	// OverrideETagHeader carries the container-scope encrypted ETag copy that
	// container updates propagate.
	OverrideETagHeader = "X-Object-Sysmeta-Container-Update-Override-Etag"
	// ObjectTransientPrefix is the namespace holding encrypted object user
	// metadata pending decryption.
	ObjectTransientPrefix = "X-Object-Transient-Sysmeta-Crypto-Meta-"
	// ObjectMetaPrefix is the plaintext object user metadata namespace.
	ObjectMetaPrefix = "X-Object-Meta-"
	// ContainerTransientPrefix is the container flavor of the transient
	// namespace.
	ContainerTransientPrefix = "X-Container-Transient-Sysmeta-Crypto-Meta-"
	// ContainerMetaPrefix is the plaintext container metadata namespace.
	ContainerMetaPrefix = "X-Container-Meta-"
	// ETagHeader is the client-visible checksum header.
	ETagHeader = "Etag"
	// OverrideFlagHeader marks a request whose response an inner pipeline
	// stage has already decrypted (or that must be served undecrypted).
	OverrideFlagHeader = "X-Backend-Crypto-Override"

	// sysmetaCryptoMarker is the object-info sysmeta key whose presence is
	// the sole signal that an object was encrypted at write time.
	sysmetaCryptoMarker = "crypto-etag"
)

// HeaderPair is a single (name, value) response header.
type HeaderPair struct {
	Name  string
	Value string
}

// HeaderValue returns the first value for name in pairs, matching
// case-insensitively. Empty string means absent.
func HeaderValue(pairs []HeaderPair, name string) string {
	for _, p := range pairs {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}

// headerList assembles the outgoing header set. Names are unique
// case-insensitively; insertion order is preserved, and the earlier entry
// wins on collision unless explicitly overwritten.
type headerList struct {
	pairs []HeaderPair
	index map[string]int
}

func newHeaderList() *headerList {
	return &headerList{index: make(map[string]int)}
}

// Add appends the pair unless a header with the same name is already staged.
// It reports whether the pair was added.
func (l *headerList) Add(name, value string) bool {
	key := strings.ToLower(name)
	if _, ok := l.index[key]; ok {
		return false
	}
	l.index[key] = len(l.pairs)
	l.pairs = append(l.pairs, HeaderPair{Name: name, Value: value})
	return true
}

// Set overwrites an already-staged header in place, or appends it.
func (l *headerList) Set(name, value string) {
	key := strings.ToLower(name)
	if i, ok := l.index[key]; ok {
		l.pairs[i].Value = value
		return
	}
	l.index[key] = len(l.pairs)
	l.pairs = append(l.pairs, HeaderPair{Name: name, Value: value})
}

// Pairs returns the assembled sequence.
func (l *headerList) Pairs() []HeaderPair {
	return l.pairs
}
