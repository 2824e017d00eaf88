package events

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no event exists with the requested id.
	// Existence is always checked before access, so a truly missing id is
	// reported as not found regardless of the caller's team set.
	ErrNotFound = errors.New("event not found")

	// ErrAccessDenied is returned when the event exists but its team is not
	// in the caller's membership set.
	ErrAccessDenied = errors.New("access denied")

	// ErrTeamNotFound is returned on create when the target team does not
	// exist. Checked even when membership was already confirmed upstream:
	// the team may have been deleted between authorization and write.
	ErrTeamNotFound = errors.New("team not found")

	// ErrConflict signals an optimistic-lock violation. Callers recover by
	// re-reading the event and retrying; the service never retries itself.
	ErrConflict = errors.New("event was updated by another user")
)

// ConflictError carries both sides of a failed optimistic-lock comparison.
// It matches ErrConflict under errors.Is.
type ConflictError struct {
	ClientUpdatedAt time.Time
	ServerUpdatedAt time.Time
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("event was updated by another user (client %s, server %s)",
		e.ClientUpdatedAt.UTC().Format(time.RFC3339), e.ServerUpdatedAt.UTC().Format(time.RFC3339))
}

func (e ConflictError) Is(target error) bool {
	return target == ErrConflict
}
