package entity

import (
	"time"
)

type UserStatus string

const (
	UserStatusUnconfirmedEmail UserStatus = "CREATED_UNCONFIRMED_EMAIL"
	UserStatusConfirmedEmail   UserStatus = "CREATED_CONFIRMED_EMAIL"
)

type User struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	PasswordHash    string     `json:"-"`
	ThumbnailBase64 string     `json:"thumbnail_base64,omitempty"`
	Status          UserStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewUser(id, username, email, name, passwordHash, thumbnail string) *User {
	now := time.Now()
	return &User{
		ID:              id,
		Username:        username,
		Email:           email,
		Name:            name,
		PasswordHash:    passwordHash,
		ThumbnailBase64: thumbnail,
		Status:          UserStatusUnconfirmedEmail,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (u *User) IsEmailConfirmed() bool {
	return u.Status == UserStatusConfirmedEmail
}

func (u *User) ConfirmEmail() {
	u.Status = UserStatusConfirmedEmail
	u.UpdatedAt = time.Now()
}
