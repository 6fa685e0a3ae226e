package outbox

import "regexp"

// maxErrorLength caps the sanitized error stored in last_error.
const maxErrorLength = 512

var sensitivePatterns = []*regexp.Regexp{
	// connection strings with embedded credentials
	regexp.MustCompile(`(?i)(amqps?|postgres(?:ql)?|redis)://[^@\s]+@`),
	// key=value credential pairs
	regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|authorization)\s*[=:]\s*\S+`),
	// bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`),
	// card-number-shaped digit runs
	regexp.MustCompile(`\b\d{13,19}\b`),
}

// sanitizeErrorForStorage redacts credentials and card-shaped digit runs
// from an error message and truncates it before it is persisted.
func sanitizeErrorForStorage(err error) string {
	if err == nil {
		return ""
	}

	message := err.Error()
	for _, pattern := range sensitivePatterns {
		message = pattern.ReplaceAllString(message, "[REDACTED]")
	}

	if len(message) > maxErrorLength {
		message = message[:maxErrorLength-3] + "..."
	}

	return message
}
