// Package notify delivers alert events to users: immediately for urgent
// kinds, batched into per-user digests for the rest. Every attempt is
// audited, and failed deliveries retry on a schedule until a cap parks
// them for operator review.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Sink sends one rendered notification to one user.
type Sink interface {
	Name() string
	Send(ctx context.Context, userID, subject, body string) error
}

// TransientError is a delivery failure worth retrying, such as a rate
// limit or an upstream server error.
type TransientError struct {
	Sink       string
	StatusCode int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Sink, e.StatusCode)
}

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
