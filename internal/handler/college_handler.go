package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/service"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// CollegeHandler handles the institution profile endpoints.
type CollegeHandler struct {
	service *service.CollegeService
}

// NewCollegeHandler constructs a college handler.
func NewCollegeHandler(svc *service.CollegeService) *CollegeHandler {
	return &CollegeHandler{service: svc}
}

// Get godoc
// @Summary Get institution profile
// @Description Returns the college name, working days and period grid
// @Tags College
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /college [get]
func (h *CollegeHandler) Get(c *gin.Context) {
	college, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, college, nil)
}

// Update godoc
// @Summary Update institution profile
// @Description Replaces working days and period labels used by the scheduler
// @Tags College
// @Accept json
// @Produce json
// @Param payload body service.UpdateCollegeRequest true "College payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /college [put]
func (h *CollegeHandler) Update(c *gin.Context) {
	var req service.UpdateCollegeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	college, err := h.service.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, college, nil)
}
