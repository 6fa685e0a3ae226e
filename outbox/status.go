package outbox

// Status is the delivery state of an outbox event.
type Status string

const (
	// StatusPending marks an event waiting to be published.
	StatusPending Status = "PENDING"

	// StatusPublished marks an event successfully handed to the broker.
	StatusPublished Status = "PUBLISHED"

	// StatusFailed marks an event whose last publish attempt failed. Failed
	// events are retried until the attempt cap, then left in place for
	// operator inspection. They are never deleted by the relay.
	StatusFailed Status = "FAILED"

	// StatusInvalid marks an event rejected by the broker for a reason that
	// retrying cannot fix, such as a malformed payload or an unroutable
	// topic. Invalid events are terminal.
	StatusInvalid Status = "INVALID"
)

// IsValid reports whether the status is one of the known values.
func (status Status) IsValid() bool {
	switch status {
	case StatusPending, StatusPublished, StatusFailed, StatusInvalid:
		return true
	}

	return false
}

// IsTerminal reports whether the relay will never touch the event again.
// Failed events are not terminal until their attempts are exhausted, which
// only the repository can decide, so Failed reports false here.
func (status Status) IsTerminal() bool {
	return status == StatusPublished || status == StatusInvalid
}

// CanTransitionTo reports whether a status change is allowed.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusPublished || next == StatusFailed || next == StatusInvalid
	case StatusFailed:
		return next == StatusPending || next == StatusPublished || next == StatusFailed || next == StatusInvalid
	default:
		return false
	}
}
