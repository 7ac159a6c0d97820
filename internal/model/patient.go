package model

type PatientStatus string

const (
	PatientStatusPending PatientStatus = "pending"
	PatientStatusActive  PatientStatus = "active"
)

type Patient struct {
	Base
	Name         string        `db:"name" json:"name"`
	Email        string        `db:"email" json:"email"`
	PasswordHash *string       `db:"password_hash" json:"-"`
	Status       PatientStatus `db:"status" json:"status"`
}

type CreatePatientRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type PatientFilters struct {
	Status PatientStatus
}
