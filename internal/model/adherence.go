package model

import (
	"time"

	"github.com/google/uuid"
)

type AdherenceStatus string

const (
	AdherencePending AdherenceStatus = "Pending"
	AdherenceTaken   AdherenceStatus = "Taken"
	AdherenceMissed  AdherenceStatus = "Missed"
)

func (s AdherenceStatus) Valid() bool {
	switch s {
	case AdherencePending, AdherenceTaken, AdherenceMissed:
		return true
	}
	return false
}

// AdherenceRecord tracks one scheduled dose for one patient on one day.
// At most one record may exist per (patient, medicine, date, period); the
// store enforces this with a unique constraint and all writers insert with
// ON CONFLICT DO NOTHING.
type AdherenceRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	MedicineID     *uuid.UUID      `db:"medicine_id" json:"medicine_id,omitempty"`
	PrescriptionID *uuid.UUID      `db:"prescription_id" json:"prescription_id,omitempty"`
	Medication     string          `db:"medication" json:"medication"`
	ScheduledDate  string          `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime  Period          `db:"scheduled_time" json:"scheduled_time"`
	Status         AdherenceStatus `db:"status" json:"adherence_status"`
	MissedDoses    int             `db:"missed_doses" json:"missed_doses"`
	ReminderSent   bool            `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// ScheduledDose is one (medicine, period) pair a patient is expected to take
// today, derived purely from prescriptions. It carries no adherence state.
type ScheduledDose struct {
	MedicineID     uuid.UUID `json:"medicine_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	MedicineName   string    `json:"medicine_name"`
	Dosage         string    `json:"dosage"`
	Instructions   string    `json:"instructions"`
	ScheduledTime  Period    `json:"scheduled_time"`
}

// TodayMedication is a row of the patient dashboard: either a persisted
// adherence record or a virtual dose that has no record yet. Virtual entries
// carry a "temp-" identifier so the client can round-trip them through the
// status update endpoint.
type TodayMedication struct {
	ID             string          `json:"id"`
	MedicineID     *uuid.UUID      `json:"medicine_id,omitempty"`
	PrescriptionID *uuid.UUID      `json:"prescription_id,omitempty"`
	Medication     string          `json:"medication"`
	Dosage         string          `json:"dosage,omitempty"`
	Instructions   string          `json:"instructions,omitempty"`
	ScheduledTime  Period          `json:"scheduled_time"`
	Status         AdherenceStatus `json:"adherence_status"`
	MissedDoses    int             `json:"missed_doses"`
	Virtual        bool            `json:"is_new_medication"`
}

// UpdateMedicationStatusRequest marks a dose Taken or Missed. Either ID names
// an existing adherence record, or IsNewMedication (or a "temp-" ID) signals
// a virtual dose to materialize, in which case the medicine fields are used.
type UpdateMedicationStatusRequest struct {
	ID              string          `json:"id"`
	Status          AdherenceStatus `json:"status" binding:"required,adherence_status"`
	PatientID       string          `json:"patient_id"`
	IsNewMedication bool            `json:"is_new_medication"`
	Medication      string          `json:"medication"`
	MedicineID      *uuid.UUID      `json:"medicine_id,omitempty"`
	PrescriptionID  *uuid.UUID      `json:"prescription_id,omitempty"`
	ScheduledTime   Period          `json:"scheduled_time" binding:"omitempty,period"`
}

// AdherenceStatsSummary aggregates a stats window.
type AdherenceStatsSummary struct {
	TotalMedications int     `json:"total_medications"`
	TakenCount       int     `json:"taken_count"`
	MissedCount      int     `json:"missed_count"`
	PendingCount     int     `json:"pending_count"`
	AdherenceRate    float64 `json:"adherence_rate"`
}

// DailyAdherenceStat is one calendar day of a stats window.
type DailyAdherenceStat struct {
	Date          string  `json:"date"`
	Total         int     `json:"total"`
	Taken         int     `json:"taken"`
	Missed        int     `json:"missed"`
	Pending       int     `json:"pending"`
	AdherenceRate float64 `json:"adherence_rate"`
}

type AdherenceStats struct {
	Summary    AdherenceStatsSummary `json:"summary"`
	DailyStats []DailyAdherenceStat  `json:"daily_stats"`
}
