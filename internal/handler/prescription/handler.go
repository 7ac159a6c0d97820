package prescription

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medtrackr/clinic-api/internal/handler"
	"github.com/medtrackr/clinic-api/internal/middleware"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/prescription"
)

type Handler struct {
	service *prescription.Service
}

func NewHandler(service *prescription.Service) *Handler {
	return &Handler{service: service}
}

// RegisterDoctorRoutes and RegisterPatientRoutes are split because the two
// groups sit behind different role middleware.
func (h *Handler) RegisterDoctorRoutes(r *gin.RouterGroup) {
	r.POST("/doctor/prescription", h.CreatePrescription)
}

func (h *Handler) RegisterPatientRoutes(r *gin.RouterGroup) {
	r.GET("/patient/prescriptions/:patientId", h.ListForPatient)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	var req model.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreatePrescription(c.Request.Context(), claims.ID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListForPatient(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}
	if claims.Role == model.RolePatient && claims.ID != patientID {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("cannot view another patient's prescriptions"))
		return
	}

	prescriptions, err := h.service.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(prescriptions))
}
