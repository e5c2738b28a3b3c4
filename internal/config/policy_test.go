package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

func TestLoadPoliciesAndMatch(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "batch.yaml", `
id: batch-accounts
accounts:
  - "AUTH_batch_*"
skip_decryption: true
`)
	writePolicyFile(t, dir, "media.yaml", `
id: media-accounts
accounts:
  - "AUTH_media"
cache:
  enabled: true
  max_items: 5000
  default_ttl: 1m
`)

	pm := NewPolicyManager()
	if err := pm.LoadPolicies([]string{filepath.Join(dir, "*.yaml")}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	if p := pm.GetPolicyForAccount("AUTH_batch_nightly"); p == nil || p.ID != "batch-accounts" {
		t.Errorf("Expected batch policy, got %+v", p)
	}
	if p := pm.GetPolicyForAccount("AUTH_media"); p == nil || p.ID != "media-accounts" {
		t.Errorf("Expected media policy, got %+v", p)
	}
	if p := pm.GetPolicyForAccount("AUTH_other"); p != nil {
		t.Errorf("Expected no policy, got %+v", p)
	}
}

func TestSkipDecryptionFor(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "batch.yaml", `
id: batch-accounts
accounts:
  - "AUTH_batch_*"
skip_decryption: true
`)

	pm := NewPolicyManager()
	if err := pm.LoadPolicies([]string{filepath.Join(dir, "*.yaml")}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	if !pm.SkipDecryptionFor("AUTH_batch_nightly") {
		t.Error("Batch accounts must skip decryption")
	}
	if pm.SkipDecryptionFor("AUTH_other") {
		t.Error("Unmatched accounts must not skip decryption")
	}
}

func TestLoadPoliciesValidation(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "bad.yaml", `
accounts:
  - "AUTH_*"
`)

	pm := NewPolicyManager()
	if err := pm.LoadPolicies([]string{filepath.Join(dir, "*.yaml")}); err == nil {
		t.Error("Policy without an id must be rejected")
	}

	dir2 := t.TempDir()
	writePolicyFile(t, dir2, "bad.yaml", `
id: no-accounts
`)
	if err := pm.LoadPolicies([]string{filepath.Join(dir2, "*.yaml")}); err == nil {
		t.Error("Policy without account patterns must be rejected")
	}
}

func TestApplyToConfig(t *testing.T) {
	base := &Config{
		Cache:     CacheConfig{Enabled: true, MaxItems: 1000, DefaultTTL: 5 * time.Minute},
		RateLimit: RateLimitConfig{Enabled: false, Limit: 100},
	}

	policy := &PolicyConfig{
		ID:        "media",
		Cache:     &CacheConfig{Enabled: true, MaxItems: 5000, DefaultTTL: time.Minute},
		RateLimit: &RateLimitConfig{Enabled: true, Limit: 500, Window: time.Minute},
	}

	applied := policy.ApplyToConfig(base)
	if applied.Cache.MaxItems != 5000 {
		t.Errorf("Cache.MaxItems = %d, want 5000", applied.Cache.MaxItems)
	}
	if !applied.RateLimit.Enabled || applied.RateLimit.Limit != 500 {
		t.Errorf("Unexpected rate limit: %+v", applied.RateLimit)
	}

	// Base stays untouched.
	if base.Cache.MaxItems != 1000 || base.RateLimit.Enabled {
		t.Errorf("Base config mutated: %+v %+v", base.Cache, base.RateLimit)
	}
}
