package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/service"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// TimetableHandler handles saved timetable endpoints.
type TimetableHandler struct {
	service *service.TimetableService
	exports *service.ExportService
}

// NewTimetableHandler constructs a timetable handler.
func NewTimetableHandler(svc *service.TimetableService, exports *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, exports: exports}
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param status query string false "Filter by status (draft, active, archived)"
// @Param algorithm query string false "Filter by algorithm"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var filter models.TimetableFilter
	filter.Status = c.Query("status")
	filter.Algorithm = c.Query("algorithm")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	timetables, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetables, pagination)
}

// Get godoc
// @Summary Get timetable by id
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, slotCount, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"timetable": timetable, "slot_count": slotCount}, nil)
}

// Activate godoc
// @Summary Activate timetable
// @Description Makes the timetable the active one, archiving the previous
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/activate [post]
func (h *TimetableHandler) Activate(c *gin.Context) {
	timetable, err := h.service.Activate(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Delete godoc
// @Summary Delete timetable
// @Description Deletes a draft or archived timetable and its slots
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// View godoc
// @Summary View timetable as a grid
// @Description Renders the timetable for one batch, faculty member or room
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param kind query string true "View kind (batch, faculty or room)"
// @Param entity_id query string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/view [get]
func (h *TimetableHandler) View(c *gin.Context) {
	view, err := h.service.View(c.Request.Context(), c.Param("id"), c.Query("kind"), c.Query("entity_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Validate godoc
// @Summary Validate timetable
// @Description Re-checks the stored slots against current hard constraints
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/validate [get]
func (h *TimetableHandler) Validate(c *gin.Context) {
	report, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export timetable
// @Description Renders a view to CSV or PDF and returns a signed download link
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.ExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/export [post]
func (h *TimetableHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.exports.Export(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
