package escalation

import (
	"context"
	"fmt"
	"strings"
)

// Directory resolves caregiver recipients by role. Supplied by the
// identity/session collaborator.
type Directory interface {
	Recipients(ctx context.Context, role Role) ([]Recipient, error)
}

// StaticDirectory is a config-backed Directory for deployments without a
// live identity service.
type StaticDirectory struct {
	byRole map[Role][]Recipient
}

// NewStaticDirectory builds a directory from per-role entries. Entries use
// the form "name=address" (comma-separated in config); channel defaults to
// email, a "sms:" prefix on the address selects SMS.
func NewStaticDirectory(entries map[Role][]string) (*StaticDirectory, error) {
	d := &StaticDirectory{byRole: make(map[Role][]Recipient)}
	for role, list := range entries {
		if !KnownRole(role) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		for i, entry := range list {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			name := entry
			address := entry
			if idx := strings.Index(entry, "="); idx > 0 {
				name = entry[:idx]
				address = entry[idx+1:]
			}
			channel := "email"
			if strings.HasPrefix(address, "sms:") {
				channel = "sms"
				address = strings.TrimPrefix(address, "sms:")
			}
			d.byRole[role] = append(d.byRole[role], Recipient{
				ID:      fmt.Sprintf("%s-%d", role, i+1),
				Name:    name,
				Role:    role,
				Channel: channel,
				Address: address,
			})
		}
	}
	return d, nil
}

// Recipients returns the configured recipients for a role.
func (d *StaticDirectory) Recipients(_ context.Context, role Role) ([]Recipient, error) {
	if !KnownRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	out := make([]Recipient, len(d.byRole[role]))
	copy(out, d.byRole[role])
	return out, nil
}

var _ Directory = (*StaticDirectory)(nil)
