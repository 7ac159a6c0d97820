package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrackr/clinic-api/internal/handler"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/patient"
)

type Handler struct {
	service *patient.Service
}

func NewHandler(service *patient.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires the doctor-facing patient management endpoints. The
// caller mounts them behind doctor-role auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctor := r.Group("/doctor")
	{
		doctor.POST("/add-patient", h.CreatePatient)
		doctor.GET("/retrievePatients", h.ListPatients)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListPatients(c *gin.Context) {
	filters := &model.PatientFilters{}
	if status := c.Query("status"); status != "" {
		filters.Status = model.PatientStatus(status)
	}

	patients, err := h.service.ListPatients(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}
