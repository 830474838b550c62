package logging

import (
	"regexp"
)

const (
	// MaxQuestionLogLength is the maximum length of a user question to log.
	MaxQuestionLogLength = 200
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match potential API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Free-text questions can carry PII. These match US SSNs and email
	// addresses, the two patterns the answer screening also checks.
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from warehouse operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeQuestion masks PII patterns in a user question and truncates it for
// logging. User questions are untrusted free text and may contain SSNs or
// email addresses that must not reach the logs.
func SanitizeQuestion(question string) string {
	if question == "" {
		return ""
	}

	sanitized := MaskPII(question)
	if len(sanitized) > MaxQuestionLogLength {
		sanitized = sanitized[:MaxQuestionLogLength] + "..."
	}
	return sanitized
}

// MaskPII replaces SSN and email patterns with redaction markers.
// Also used by the answer screening before findings are returned to callers.
func MaskPII(s string) string {
	masked := ssnPattern.ReplaceAllString(s, RedactedText)
	masked = emailPattern.ReplaceAllString(masked, RedactedText)
	return masked
}

// ContainsPII reports whether the text matches a known PII pattern.
func ContainsPII(s string) bool {
	return ssnPattern.MatchString(s) || emailPattern.MatchString(s)
}
