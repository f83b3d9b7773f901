package models

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Roles        []Role
	CreatedAt    time.Time
}

type Role struct {
	Name        string
	Permissions []string
}
