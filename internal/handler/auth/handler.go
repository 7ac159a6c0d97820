package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrackr/clinic-api/internal/handler"
	"github.com/medtrackr/clinic-api/internal/model"
	"github.com/medtrackr/clinic-api/internal/service/auth"
)

type Handler struct {
	service *auth.Service
}

func NewHandler(service *auth.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signin", h.Signin)
		authGroup.POST("/set-password", h.SetPassword)
	}
}

func (h *Handler) Signin(c *gin.Context) {
	var req model.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tokens, err := h.service.Signin(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) SetPassword(c *gin.Context) {
	var req model.SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.SetPassword(c.Request.Context(), &req); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"message": "password set"}))
}
