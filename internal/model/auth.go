package model

import "github.com/google/uuid"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// TokenClaims is the verified identity attached to a request.
type TokenClaims struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Role  Role   `json:"role"`
	ID    string `json:"id"`
}
