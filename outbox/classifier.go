package outbox

import "strings"

// RetryClassifier decides whether a publish error is worth retrying. The
// relay marks events with non-retryable errors as invalid instead of
// burning attempts on them.
type RetryClassifier interface {
	IsRetryable(err error) bool
}

// DefaultRetryClassifier treats broker rejections that indicate a
// misconfigured route or a malformed message as permanent, and everything
// else, connection resets and timeouts included, as transient.
type DefaultRetryClassifier struct{}

// IsRetryable implements RetryClassifier.
func (DefaultRetryClassifier) IsRetryable(err error) bool {
	if err == nil {
		return true
	}

	message := strings.ToUpper(err.Error())

	for _, marker := range []string{
		"NOT_FOUND",
		"ACCESS_REFUSED",
		"PRECONDITION_FAILED",
		"FRAME_ERROR",
		"UNROUTABLE",
	} {
		if strings.Contains(message, marker) {
			return false
		}
	}

	return true
}
