package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when the anthropic provider has no key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource says where the API key came from.
type KeySource string

const (
	KeySourceNexusEnv     KeySource = "NEXUS_LLM_API_KEY"
	KeySourceAnthropicEnv KeySource = "ANTHROPIC_API_KEY"
	KeySourceConfig       KeySource = "config file"
	KeySourceNotRequired  KeySource = "not required (bedrock)"
	KeySourceNone         KeySource = "none"
)

const (
	anthropicKeyPrefix = "sk-ant-"
	minAPIKeyLen       = 20
)

// APIKey is a resolved key and its origin.
type APIKey struct {
	Value  string
	Source KeySource
}

// ResolveAPIKey finds the key for the configured provider. Environment
// variables win over the config file, NEXUS_LLM_API_KEY over
// ANTHROPIC_API_KEY. A config value that still holds an unexpanded ${VAR}
// counts as unset. Bedrock authenticates through AWS and needs no key.
func ResolveAPIKey(cfg *Config) (APIKey, error) {
	if cfg != nil && cfg.LLM.Provider == ProviderBedrock {
		return APIKey{Source: KeySourceNotRequired}, nil
	}
	if v := os.Getenv(string(KeySourceNexusEnv)); v != "" {
		return APIKey{Value: v, Source: KeySourceNexusEnv}, nil
	}
	if v := os.Getenv(string(KeySourceAnthropicEnv)); v != "" {
		return APIKey{Value: v, Source: KeySourceAnthropicEnv}, nil
	}
	if cfg != nil {
		if v := os.ExpandEnv(cfg.LLM.APIKey); v != "" && !strings.Contains(v, "${") {
			return APIKey{Value: v, Source: KeySourceConfig}, nil
		}
	}
	return APIKey{Source: KeySourceNone}, ErrNoAPIKey
}

// ValidateAPIKey checks key against the provider rules of cfg. Bedrock
// accepts anything. Against the public Anthropic endpoint the key must look
// like an Anthropic key; behind a custom llm.base_url only presence is
// checked, since gateways issue their own tokens. The key is never sent
// anywhere.
func (c *Config) ValidateAPIKey(key string) error {
	if c.LLM.Provider == ProviderBedrock {
		return nil
	}
	if key == "" {
		return ErrNoAPIKey
	}
	if c.LLM.BaseURL != "" {
		return nil
	}
	if !strings.HasPrefix(key, anthropicKeyPrefix) {
		return fmt.Errorf("invalid API key: expected %q prefix", anthropicKeyPrefix)
	}
	if len(key) < minAPIKeyLen {
		return fmt.Errorf("invalid API key: shorter than %d characters", minAPIKeyLen)
	}
	return nil
}

// MaskAPIKey hides all but the recognizable prefix and the last four
// characters of key.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) < minAPIKeyLen:
		return "***"
	case strings.HasPrefix(key, anthropicKeyPrefix):
		return anthropicKeyPrefix + "..." + key[len(key)-4:]
	default:
		return "..." + key[len(key)-4:]
	}
}
