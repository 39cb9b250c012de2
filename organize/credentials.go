package organize

import (
	"fmt"
	"os"
	"strings"
)

// envVarFor returns the environment variable holding the provider's
// API key. Google's key ships under GEMINI_API_KEY.
func envVarFor(provider string) string {
	switch provider {
	case "google":
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// resolveAPIKey prefers the caller-supplied key, then the environment.
func resolveAPIKey(cfg Config) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return os.Getenv(envVarFor(cfg.Provider))
}

var placeholderSubstrings = []string{
	"your_api_key", "your-api-key", "changeme", "change_me",
	"placeholder", "example", "xxxx", "api_key_here",
}

// validateKeyFormat rejects keys that are obviously wrong before any
// request is sent: bad prefix, bad length, placeholders, degenerate
// values.
func validateKeyFormat(provider, key string) error {
	if key == "" {
		return kindErrorf(KindAuth, "no API key for %s (set %s)", provider, envVarFor(provider))
	}
	if len(key) < 16 || len(key) > 256 {
		return kindErrorf(KindAuth, "%s API key has implausible length %d", provider, len(key))
	}

	lower := strings.ToLower(key)
	for _, p := range placeholderSubstrings {
		if strings.Contains(lower, p) {
			return kindErrorf(KindAuth, "%s API key looks like a placeholder", provider)
		}
	}
	if strings.Trim(key, "0") == "" || strings.Trim(key, "1") == "" {
		return kindErrorf(KindAuth, "%s API key is degenerate", provider)
	}

	var prefix string
	switch provider {
	case "openai", "deepseek":
		prefix = "sk-"
	case "anthropic":
		prefix = "sk-ant-"
	case "google":
		prefix = "AIza"
	default:
		return nil // local needs no key
	}
	if !strings.HasPrefix(key, prefix) {
		return kindErrorf(KindAuth, "%s API key should start with %q", provider, prefix)
	}
	return nil
}

// describeKey renders a key safely for logs: prefix plus length only.
func describeKey(key string) string {
	if len(key) < 8 {
		return fmt.Sprintf("(%d chars)", len(key))
	}
	return fmt.Sprintf("%s… (%d chars)", key[:6], len(key))
}
