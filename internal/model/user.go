package model

import "time"

// User roles. Creators get the same review powers as admins.
const (
	RolePatron  = "patron"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider   string    `gorm:"not null;size:20" json:"-"`
	ProviderID string    `gorm:"not null;size:255" json:"-"`
	Username   string    `gorm:"not null;size:255" json:"username"`
	Email      string    `gorm:"size:255" json:"email,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Role       string    `gorm:"size:20;default:patron" json:"role"`
	Tier       string    `gorm:"size:50" json:"tier,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user can review suggestions and reach
// admin endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleCreator
}
