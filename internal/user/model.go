package user

import "time"

// User is the full credential record. It is never serialized to clients.
type User struct {
	ID                    string
	Username              string
	Email                 string
	FullName              string
	PasswordHash          string
	Avatar                string
	CoverImage            string
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Profile is the client-facing projection of a user. Password and refresh token
// are deliberately absent.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type NewUser struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Avatar       string
	CoverImage   string
}

type AccountUpdate struct {
	Username string
	Email    string
	FullName string
}
