package organize

import "regexp"

// Patterns matching known API-key shapes. Anthropic's sk-ant- prefix is
// covered by the generic sk- pattern.
var keyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),       // OpenAI, DeepSeek, Anthropic
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),       // Google
	regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)\S+`), // key=... assignments
}

// Redact replaces every substring matching a known API-key shape with
// [REDACTED]. Applied to every user-visible string and error-log line.
func Redact(s string) string {
	out := s
	for i, re := range keyPatterns {
		if i == len(keyPatterns)-1 {
			// Assignment pattern: keep the key name, redact the value.
			out = re.ReplaceAllString(out, "${1}[REDACTED]")
			continue
		}
		out = re.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
