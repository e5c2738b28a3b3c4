package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// metaParam separates the ciphertext from its crypto parameters inside a
// header value. The format is an external contract with the write-side
// encrypter: "<base64 ciphertext>; swift_meta=<base64 json>".
const metaParam = "; swift_meta="

// KeyID identifies which root secret version (and optionally which derivation
// path) protected a value. It is carried inside the crypto meta so that the
// decrypt side can fetch the matching key after rotation.
type KeyID struct {
	SecretID string `json:"secret_id,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Meta holds the per-value crypto parameters recorded at write time.
type Meta struct {
	Cipher string `json:"cipher"`
	IV     []byte `json:"iv"`
	KeyID  *KeyID `json:"key_id,omitempty"`
}

// ValueError reports a malformed or undecryptable header value. Callers use
// errors.As to distinguish these expected failures from programming errors.
type ValueError struct {
	Op  string
	Err error
}

func (e *ValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto value %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crypto value %s", e.Op)
}

func (e *ValueError) Unwrap() error { return e.Err }

func valueErrorf(op, format string, args ...interface{}) error {
	return &ValueError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ParseValue splits an encrypted header value into its ciphertext and crypto
// meta parts.
func ParseValue(value string) ([]byte, *Meta, error) {
	idx := strings.Index(value, metaParam)
	if idx < 0 {
		return nil, nil, valueErrorf("parse", "missing %q parameter", strings.TrimSpace(metaParam))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(value[:idx])
	if err != nil {
		return nil, nil, &ValueError{Op: "parse", Err: fmt.Errorf("invalid ciphertext encoding: %w", err)}
	}

	metaJSON, err := base64.StdEncoding.DecodeString(value[idx+len(metaParam):])
	if err != nil {
		return nil, nil, &ValueError{Op: "parse", Err: fmt.Errorf("invalid meta encoding: %w", err)}
	}

	var meta Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, &ValueError{Op: "parse", Err: fmt.Errorf("invalid meta json: %w", err)}
	}
	if meta.Cipher == "" {
		return nil, nil, valueErrorf("parse", "meta is missing cipher")
	}

	return ciphertext, &meta, nil
}

// ParseMeta extracts only the crypto meta from an encrypted header value.
// The resolver uses this to learn the key id before any keys are fetched.
// An empty value yields a nil meta and no error.
func ParseMeta(value string) (*Meta, error) {
	if value == "" {
		return nil, nil
	}
	_, meta, err := ParseValue(value)
	return meta, err
}

// DecryptValue decrypts a single encrypted header value with the given key.
// All failure modes (bad format, unknown cipher, key mismatch) surface as a
// *ValueError; AEAD authentication guarantees a wrong key is detected rather
// than producing garbage plaintext.
func DecryptValue(key []byte, value string) (string, error) {
	ciphertext, meta, err := ParseValue(value)
	if err != nil {
		return "", err
	}

	aead, err := createAEADCipher(meta.Cipher, key)
	if err != nil {
		return "", &ValueError{Op: "decrypt", Err: err}
	}
	if len(meta.IV) != aead.NonceSize() {
		return "", valueErrorf("decrypt", "invalid iv size %d for cipher %s", len(meta.IV), meta.Cipher)
	}

	plaintext, err := aead.Open(nil, meta.IV, ciphertext, nil)
	if err != nil {
		return "", &ValueError{Op: "decrypt", Err: fmt.Errorf("authentication failed: %w", err)}
	}
	return string(plaintext), nil
}

// EncryptValue is the write-side counterpart of DecryptValue. The gateway
// itself never encrypts on the serving path; this exists for tests and
// tooling that need to fabricate encrypted responses.
func EncryptValue(key []byte, plaintext string, keyID *KeyID) (string, error) {
	return EncryptValueWithCipher(key, plaintext, keyID, AlgorithmAES256GCM)
}

// EncryptValueWithCipher encrypts a header value with an explicit cipher.
func EncryptValueWithCipher(key []byte, plaintext string, keyID *KeyID, algorithm string) (string, error) {
	aead, err := createAEADCipher(algorithm, key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, []byte(plaintext), nil)

	metaJSON, err := json.Marshal(&Meta{Cipher: algorithm, IV: iv, KeyID: keyID})
	if err != nil {
		return "", fmt.Errorf("failed to encode meta: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext) +
		metaParam +
		base64.StdEncoding.EncodeToString(metaJSON), nil
}
