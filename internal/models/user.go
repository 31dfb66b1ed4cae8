package models

import "time"

type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleSuperUser UserRole = "super_user"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	TeamID    string    `json:"teamId,omitempty"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type MemberRole string

const (
	MemberAdmin  MemberRole = "admin"
	MemberMember MemberRole = "member"
)

type TeamMember struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

type Team struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Members   []TeamMember `json:"members"`
	CreatedBy string       `json:"createdBy"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Member returns the member entry for userID, or nil.
func (t *Team) Member(userID string) *TeamMember {
	for i := range t.Members {
		if t.Members[i].ID == userID {
			return &t.Members[i]
		}
	}
	return nil
}
