package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the read-only view of an account owned by the authentication
// service. The chat core only looks users up; it never writes profiles.
type User struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profilePic,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
