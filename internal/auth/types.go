package auth

import "time"

// Role is the authorization tag carried by every user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// Resource identifies a protectable domain object.
type Resource string

const (
	ResourceOrganization Resource = "organization"
	ResourceBranch       Resource = "branch"
	ResourceUser         Resource = "user"
	ResourceCall         Resource = "call"
	ResourceLead         Resource = "lead"
	ResourcePrompt       Resource = "prompt"
	ResourceMetric       Resource = "metric"
	ResourceInvite       Resource = "invite"
)

// Action is an operation class on a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager
}

// User is an account as seen by the identity store.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FullName        string    `json:"full_name"`
	Designation     string    `json:"designation,omitempty"`
	OrganizationID  string    `json:"organization_id"`
	CurrentBranchID string    `json:"current_branch_id,omitempty"`
	Role            Role      `json:"role"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
