package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ryanuber/go-glob"
	"gopkg.in/yaml.v3"
)

// PolicyConfig holds the structure for a per-account policy file.
type PolicyConfig struct {
	ID             string           `yaml:"id"`
	Accounts       []string         `yaml:"accounts"` // Glob patterns for account names
	SkipDecryption bool             `yaml:"skip_decryption,omitempty"`
	Cache          *CacheConfig     `yaml:"cache,omitempty"`
	RateLimit      *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// PolicyManager manages loading and matching policies.
type PolicyManager struct {
	policies []*PolicyConfig
	mu       sync.RWMutex
}

// NewPolicyManager creates a new policy manager.
func NewPolicyManager() *PolicyManager {
	return &PolicyManager{
		policies: make([]*PolicyConfig, 0),
	}
}

// LoadPolicies loads policies from the specified file patterns.
func (pm *PolicyManager) LoadPolicies(patterns []string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.policies = make([]*PolicyConfig, 0)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}

		for _, match := range matches {
			data, err := os.ReadFile(match)
			if err != nil {
				return fmt.Errorf("failed to read policy file %s: %w", match, err)
			}

			var policy PolicyConfig
			if err := yaml.Unmarshal(data, &policy); err != nil {
				return fmt.Errorf("failed to parse policy file %s: %w", match, err)
			}

			// Validate policy
			if policy.ID == "" {
				return fmt.Errorf("policy in file %s must have an ID", match)
			}
			if len(policy.Accounts) == 0 {
				return fmt.Errorf("policy %s must specify at least one account pattern", policy.ID)
			}

			pm.policies = append(pm.policies, &policy)
		}
	}

	return nil
}

// GetPolicyForAccount returns the first matching policy for the given account.
func (pm *PolicyManager) GetPolicyForAccount(account string) *PolicyConfig {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, policy := range pm.policies {
		for _, pattern := range policy.Accounts {
			if glob.Glob(pattern, account) {
				return policy
			}
		}
	}
	return nil
}

// SkipDecryptionFor reports whether a policy disables decryption for the
// given account. Responses for such accounts pass through untouched, the
// same as when a client sets the override flag.
func (pm *PolicyManager) SkipDecryptionFor(account string) bool {
	policy := pm.GetPolicyForAccount(account)
	return policy != nil && policy.SkipDecryption
}

// ApplyToConfig applies policy overrides to a copy of the base configuration.
func (p *PolicyConfig) ApplyToConfig(base *Config) *Config {
	newConfig := *base

	if p.Cache != nil {
		newConfig.Cache = *p.Cache
	}
	if p.RateLimit != nil {
		newConfig.RateLimit = *p.RateLimit
	}

	return &newConfig
}
