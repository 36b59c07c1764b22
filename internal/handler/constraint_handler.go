package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/service"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// ConstraintHandler handles scheduling constraint configuration.
type ConstraintHandler struct {
	service *service.ConstraintService
}

// NewConstraintHandler constructs a constraint handler.
func NewConstraintHandler(svc *service.ConstraintService) *ConstraintHandler {
	return &ConstraintHandler{service: svc}
}

// List godoc
// @Summary List scheduling constraints
// @Description Lists hard and soft scheduling rules with weights
// @Tags Constraints
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	constraints, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, constraints, nil)
}

// Update godoc
// @Summary Update a constraint
// @Description Toggles a rule or adjusts its penalty weight
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body models.ConstraintUpdate true "Constraint payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /constraints [put]
func (h *ConstraintHandler) Update(c *gin.Context) {
	var req models.ConstraintUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	constraint, err := h.service.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, constraint, nil)
}
