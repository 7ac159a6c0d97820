package schedule

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrackr/clinic-api/internal/model"
)

func prescriptionWith(medicines ...model.Medicine) *model.Prescription {
	p := &model.Prescription{}
	p.ID = uuid.New()
	for i := range medicines {
		medicines[i].ID = uuid.New()
		medicines[i].PrescriptionID = p.ID
		medicines[i].Position = i
	}
	p.Medicines = medicines
	return p
}

func TestDeriveMultiPeriodMedicine(t *testing.T) {
	p := prescriptionWith(model.Medicine{Name: "Aspirin", Morning: true, Evening: true})

	doses := Derive([]*model.Prescription{p})
	require.Len(t, doses, 2)

	assert.Equal(t, model.PeriodMorning, doses[0].ScheduledTime)
	assert.Equal(t, model.PeriodEvening, doses[1].ScheduledTime)
	for _, d := range doses {
		assert.Equal(t, "Aspirin", d.MedicineName)
		assert.Equal(t, p.Medicines[0].ID, d.MedicineID)
		assert.Equal(t, p.ID, d.PrescriptionID)
	}
}

func TestDeriveSkipsMedicinesWithNoPeriods(t *testing.T) {
	p := prescriptionWith(
		model.Medicine{Name: "Unscheduled"},
		model.Medicine{Name: "Vitamin D", Morning: true},
	)

	doses := Derive([]*model.Prescription{p})
	require.Len(t, doses, 1)
	assert.Equal(t, "Vitamin D", doses[0].MedicineName)
}

func TestDeriveOrderIsStable(t *testing.T) {
	first := prescriptionWith(
		model.Medicine{Name: "A", Afternoon: true},
		model.Medicine{Name: "B", Morning: true, Afternoon: true},
	)
	second := prescriptionWith(model.Medicine{Name: "C", Morning: true})

	doses := Derive([]*model.Prescription{first, second})
	require.Len(t, doses, 4)

	// Prescription order, then medicine position, then period order.
	assert.Equal(t, "A", doses[0].MedicineName)
	assert.Equal(t, model.PeriodAfternoon, doses[0].ScheduledTime)
	assert.Equal(t, "B", doses[1].MedicineName)
	assert.Equal(t, model.PeriodMorning, doses[1].ScheduledTime)
	assert.Equal(t, "B", doses[2].MedicineName)
	assert.Equal(t, model.PeriodAfternoon, doses[2].ScheduledTime)
	assert.Equal(t, "C", doses[3].MedicineName)
}

func TestDeriveEmpty(t *testing.T) {
	assert.Empty(t, Derive(nil))
	assert.Empty(t, Derive([]*model.Prescription{prescriptionWith()}))
}
