package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(0x42)

	encrypted, err := EncryptValue(key, "d41d8cd98f00b204e9800998ecf8427e", nil)
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}
	if !strings.Contains(encrypted, "; swift_meta=") {
		t.Errorf("Encrypted value missing meta parameter: %s", encrypted)
	}

	plaintext, err := DecryptValue(key, encrypted)
	if err != nil {
		t.Fatalf("DecryptValue failed: %v", err)
	}
	if plaintext != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Expected round-tripped plaintext, got %q", plaintext)
	}
}

func TestEncryptDecryptChaCha20(t *testing.T) {
	key := testKey(0x17)

	encrypted, err := EncryptValueWithCipher(key, "secret value", nil, AlgorithmChaCha20Poly1305)
	if err != nil {
		t.Fatalf("EncryptValueWithCipher failed: %v", err)
	}

	_, meta, err := ParseValue(encrypted)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	if meta.Cipher != AlgorithmChaCha20Poly1305 {
		t.Errorf("Expected cipher %s, got %s", AlgorithmChaCha20Poly1305, meta.Cipher)
	}

	plaintext, err := DecryptValue(key, encrypted)
	if err != nil {
		t.Fatalf("DecryptValue failed: %v", err)
	}
	if plaintext != "secret value" {
		t.Errorf("Expected plaintext, got %q", plaintext)
	}
}

func TestDecryptValueWrongKey(t *testing.T) {
	encrypted, err := EncryptValue(testKey(1), "payload", nil)
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}

	_, err = DecryptValue(testKey(2), encrypted)
	if err == nil {
		t.Fatal("Expected authentication failure with wrong key")
	}
	var verr *ValueError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *ValueError, got %T", err)
	}
}

func TestParseValueErrors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"missing meta", "YWJj"},
		{"bad ciphertext encoding", "!!!; swift_meta=" + base64.StdEncoding.EncodeToString([]byte("{}"))},
		{"bad meta encoding", "YWJj; swift_meta=!!!"},
		{"bad meta json", "YWJj; swift_meta=" + base64.StdEncoding.EncodeToString([]byte("not json"))},
		{"missing cipher", "YWJj; swift_meta=" + base64.StdEncoding.EncodeToString([]byte(`{"iv":"AAAA"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseValue(tt.value)
			if err == nil {
				t.Fatal("Expected parse error")
			}
			var verr *ValueError
			if !errors.As(err, &verr) {
				t.Errorf("Expected *ValueError, got %T", err)
			}
		})
	}
}

func TestParseMetaEmptyValue(t *testing.T) {
	meta, err := ParseMeta("")
	if err != nil {
		t.Fatalf("ParseMeta on empty value failed: %v", err)
	}
	if meta != nil {
		t.Errorf("Expected nil meta, got %+v", meta)
	}
}

func TestParseMetaCarriesKeyID(t *testing.T) {
	keyID := &KeyID{SecretID: "2024", Path: "/acct/cont/obj"}
	encrypted, err := EncryptValue(testKey(9), "etag", keyID)
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}

	meta, err := ParseMeta(encrypted)
	if err != nil {
		t.Fatalf("ParseMeta failed: %v", err)
	}
	if meta.KeyID == nil || meta.KeyID.SecretID != "2024" || meta.KeyID.Path != "/acct/cont/obj" {
		t.Errorf("KeyID not preserved: %+v", meta.KeyID)
	}
}

func TestDecryptValueBadIVSize(t *testing.T) {
	key := testKey(3)

	metaJSON, _ := json.Marshal(&Meta{Cipher: AlgorithmAES256GCM, IV: bytes.Repeat([]byte{0}, 7)})
	value := base64.StdEncoding.EncodeToString([]byte("ciphertext")) +
		"; swift_meta=" + base64.StdEncoding.EncodeToString(metaJSON)

	_, err := DecryptValue(key, value)
	if err == nil {
		t.Fatal("Expected error for bad iv size")
	}
	var verr *ValueError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *ValueError, got %T", err)
	}
}

func TestDecryptValueUnknownCipher(t *testing.T) {
	metaJSON, _ := json.Marshal(&Meta{Cipher: "ROT13", IV: bytes.Repeat([]byte{0}, 12)})
	value := base64.StdEncoding.EncodeToString([]byte("ciphertext")) +
		"; swift_meta=" + base64.StdEncoding.EncodeToString(metaJSON)

	_, err := DecryptValue(testKey(4), value)
	if err == nil {
		t.Fatal("Expected error for unknown cipher")
	}
	var verr *ValueError
	if !errors.As(err, &verr) {
		t.Errorf("Expected *ValueError, got %T", err)
	}
}
