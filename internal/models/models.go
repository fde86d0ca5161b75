package models

import (
	"time"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36"          json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"not null"                    json:"-"`
	FullName     string    `gorm:"size:100;not null"           json:"full_name"`
	Role         string    `gorm:"size:20;not null"            json:"role"`
	CreatedAt    time.Time `gorm:"not null"                    json:"created_at"`
}

func (User) TableName() string { return "users" }

// SafeUser is the only shape of a user that leaves the service.
type SafeUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Safe() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
