package model

import (
	"time"

	"github.com/google/uuid"
)

// Prescription is immutable once created: medicines are written in one
// transaction with the prescription row and never edited afterwards.
type Prescription struct {
	Base
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	IssuedAt  time.Time  `db:"issued_at" json:"issued_at"`
	Medicines []Medicine `db:"-" json:"medicines"`
}

// Medicine is one entry of a prescription. The three timing flags mark which
// periods of the day a dose is due; a medicine may be due in several.
type Medicine struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	Name           string    `db:"name" json:"name"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Instructions   string    `db:"instructions" json:"instructions"`
	Duration       string    `db:"duration" json:"duration"`
	Morning        bool      `db:"morning" json:"morning"`
	Afternoon      bool      `db:"afternoon" json:"afternoon"`
	Evening        bool      `db:"evening" json:"evening"`
	Position       int       `db:"position" json:"-"`
}

// DueAt reports whether the medicine is due in the given period.
func (m *Medicine) DueAt(p Period) bool {
	switch p {
	case PeriodMorning:
		return m.Morning
	case PeriodAfternoon:
		return m.Afternoon
	case PeriodEvening:
		return m.Evening
	}
	return false
}

type CreateMedicineRequest struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage" binding:"required"`
	Instructions string `json:"instructions"`
	Duration     string `json:"duration"`
	Morning      bool   `json:"morning"`
	Afternoon    bool   `json:"afternoon"`
	Evening      bool   `json:"evening"`
}

type CreatePrescriptionRequest struct {
	PatientID string                  `json:"patient_id" binding:"required,uuid"`
	Medicines []CreateMedicineRequest `json:"medicines" binding:"required,min=1,dive"`
}
