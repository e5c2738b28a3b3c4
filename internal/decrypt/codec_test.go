package decrypt

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func fixedKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, crypto.KeySize)
}

func mustEncrypt(t *testing.T, key []byte, plaintext string) string {
	t.Helper()
	value, err := crypto.EncryptValue(key, plaintext, nil)
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}
	return value
}

func TestDecryptHeaderSuccess(t *testing.T) {
	key := fixedKey(5)
	value := mustEncrypt(t, key, "plain-etag")

	got, err := DecryptHeader(quietLogger(), CryptoETagHeader, value, key, true)
	if err != nil {
		t.Fatalf("DecryptHeader failed: %v", err)
	}
	if got != "plain-etag" {
		t.Errorf("Expected plain-etag, got %q", got)
	}
}

func TestDecryptHeaderRequiredFailure(t *testing.T) {
	value := mustEncrypt(t, fixedKey(5), "plain-etag")

	_, err := DecryptHeader(quietLogger(), CryptoETagHeader, value, fixedKey(6), true)
	if err != ErrHeaderDecryption {
		t.Errorf("Expected ErrHeaderDecryption, got %v", err)
	}
}

func TestDecryptHeaderOptionalFailure(t *testing.T) {
	value := mustEncrypt(t, fixedKey(5), "plain-etag")

	got, err := DecryptHeader(quietLogger(), OverrideETagHeader, value, fixedKey(6), false)
	if err != nil {
		t.Fatalf("Optional failure must not error: %v", err)
	}
	if got != "" {
		t.Errorf("Expected empty plaintext on optional failure, got %q", got)
	}
}
