package medication

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/handler"
	"github.com/medtrackr/clinic-api/internal/middleware"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/adherence"
	"github.com/medtrackr/clinic-api/internal/service/reminder"
)

// Handler exposes the medication tracking endpoints: the daily schedule,
// status updates, history, adherence stats and the manual reminder trigger.
type Handler struct {
	adherenceSvc *adherence.Service
	reminderSvc  *reminder.Service
}

func NewHandler(adherenceSvc *adherence.Service, reminderSvc *reminder.Service) *Handler {
	return &Handler{adherenceSvc: adherenceSvc, reminderSvc: reminderSvc}
}

// RegisterPatientRoutes mounts the patient-facing endpoints; the caller puts
// them behind patient auth and the missed-medication middleware.
func (h *Handler) RegisterPatientRoutes(r *gin.RouterGroup) {
	meds := r.Group("/patient/medications")
	{
		meds.GET("/today/:patientId", h.TodayMedications)
		meds.POST("/update-status", h.UpdateStatus)
		meds.GET("/history/:patientId", h.History)
	}
}

// RegisterVerifiedRoutes mounts endpoints any verified token may call.
func (h *Handler) RegisterVerifiedRoutes(r *gin.RouterGroup) {
	r.GET("/patient/medications/adherence-stats/:patientId", h.AdherenceStats)
}

// RegisterAdminRoutes mounts the manual dispatch trigger behind doctor auth.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/send-medication-reminders", h.SendReminders)
}

func (h *Handler) TodayMedications(c *gin.Context) {
	patientID, ok := h.patientScope(c)
	if !ok {
		return
	}

	medications, err := h.adherenceSvc.TodaySchedule(c.Request.Context(), patientID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(medications))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok || claims.Role != model.RolePatient {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only patients can update medication status"))
		return
	}

	var req model.UpdateMedicationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	record, err := h.adherenceSvc.UpdateStatus(c.Request.Context(), claims.ID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if req.IsNewMedication {
		status = http.StatusCreated
	}
	c.JSON(status, handler.NewSuccessResponse(record))
}

func (h *Handler) History(c *gin.Context) {
	patientID, ok := h.patientScope(c)
	if !ok {
		return
	}

	days := queryDays(c, 7)
	history, err := h.adherenceSvc.History(c.Request.Context(), patientID, days)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(history))
}

func (h *Handler) AdherenceStats(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	days := queryDays(c, 30)
	stats, err := h.adherenceSvc.Stats(c.Request.Context(), patientID, days)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

type sendRemindersRequest struct {
	TimeOfDay string `json:"timeOfDay"`
}

func (h *Handler) SendReminders(c *gin.Context) {
	req := sendRemindersRequest{TimeOfDay: string(model.PeriodMorning)}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	period, err := model.ParsePeriod(req.TimeOfDay)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	sent, err := h.reminderSvc.Dispatch(c.Request.Context(), period)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"period":            period,
		"patients_notified": sent,
	}))
}

// patientScope resolves the :patientId path param and rejects patients
// reaching for another patient's data. The token is the source of truth.
func (h *Handler) patientScope(c *gin.Context) (uuid.UUID, bool) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return uuid.Nil, false
	}
	if claims.Role != model.RolePatient {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only patients can view medications"))
		return uuid.Nil, false
	}

	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return uuid.Nil, false
	}
	if patientID != claims.ID {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("cannot access another patient's medications"))
		return uuid.Nil, false
	}
	return patientID, true
}

func queryDays(c *gin.Context, fallback int) int {
	raw := c.Query("days")
	if raw == "" {
		return fallback
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return fallback
	}
	return days
}
