package escalation

import "errors"

var (
	// ErrUnknownRole is returned when a tier references a role outside the
	// closed recipient-role set.
	ErrUnknownRole = errors.New("escalation: unknown recipient role")

	// ErrEventNotFound is returned for lookups of unknown escalation events.
	ErrEventNotFound = errors.New("escalation: event not found")

	// ErrNoRecipients is returned when a tier resolves to zero recipients.
	ErrNoRecipients = errors.New("escalation: no recipients for tier")
)
