package teams

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a team lookup fails.
	ErrNotFound = errors.New("team not found")

	// ErrAccessDenied is returned when the acting user is not a member of the team.
	ErrAccessDenied = errors.New("access denied")

	// ErrAlreadyMember is returned when adding a user who already belongs to the team.
	ErrAlreadyMember = errors.New("user is already a team member")

	// ErrUserNotFound is returned when adding a user that does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid membership role")

	// ErrInvalidName is returned when a team name is empty after sanitization.
	ErrInvalidName = errors.New("team name is required")
)

// Role labels a membership. Stored on every membership row but not consulted
// by any authorization decision: access is flat by membership. Differential
// authorization by role is a documented extension point.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

type Team struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Membership struct {
	ID       string
	UserID   string
	TeamID   string
	Role     Role
	JoinedAt time.Time
}

type CreateParams struct {
	ID          string
	Name        string
	Description string
	// OwnerID becomes the first membership row, created in the same
	// transaction as the team itself.
	OwnerID string
}

type AddMemberParams struct {
	TeamID string
	UserID string
	Role   Role
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Team, error)
	GetByID(ctx context.Context, id string) (*Team, error)
	ListForUser(ctx context.Context, userID string) ([]Team, error)
	ListMemberTeamIDs(ctx context.Context, userID string) ([]string, error)
	AddMember(ctx context.Context, params AddMemberParams) (*Membership, error)
}
