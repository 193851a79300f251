package chat

import (
	"regexp"
)

// Redactor scrubs credential-shaped strings from user questions before they
// are sent to the remote service or written to history. Questions are free
// text typed on a phone; pasted keys and tokens must not leave the device.
type Redactor struct {
	patterns []*regexp.Regexp
}

const redactedMarker = "[redacted]"

// NewRedactor builds a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: compileDefaultPatterns()}
}

func compileDefaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Google API keys
		`AIza[0-9A-Za-z_-]{35}`,

		// OpenAI / Anthropic style keys
		`sk-[A-Za-z0-9_-]{20,}`,

		// AWS access keys
		`AKIA[0-9A-Z]{16}`,

		// Generic key/secret assignments
		`(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,
		`(?i)secret\s*[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,

		// Bearer tokens
		`Bearer\s+[A-Za-z0-9._-]{20,}`,

		// PEM private key headers
		`-----BEGIN\s+(?:RSA|DSA|EC|OPENSSH|PGP)\s+PRIVATE\s+KEY-----`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

// Redact replaces credential-shaped substrings and reports whether anything
// was replaced.
func (r *Redactor) Redact(text string) (string, bool) {
	if r == nil {
		return text, false
	}
	redacted := false
	for _, pattern := range r.patterns {
		matches := pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		redacted = true
		// Replace from the end so earlier indices stay valid.
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][0], matches[i][1]
			text = text[:start] + redactedMarker + text[end:]
		}
	}
	return text, redacted
}
