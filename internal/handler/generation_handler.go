package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/service"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// GenerationHandler exposes the timetable generation workflow.
type GenerationHandler struct {
	service *service.GenerationService
}

// NewGenerationHandler constructs a generation handler.
func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// Generate godoc
// @Summary Generate a timetable
// @Description Runs the solver for the given batches. With async=true the
// @Description call returns a pending run to poll; otherwise it blocks until
// @Description the solve finishes.
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	run, err := h.service.Generate(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if run.Status == dto.RunStatusPending || run.Status == dto.RunStatusRunning {
		status = http.StatusAccepted
	}
	response.JSON(c, status, run, nil)
}

// Run godoc
// @Summary Poll a generation run
// @Description Returns the current state of a generation run by id
// @Tags Generation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /generate/runs/{id} [get]
func (h *GenerationHandler) Run(c *gin.Context) {
	run, err := h.service.Run(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Save godoc
// @Summary Save a completed run
// @Description Persists a completed run as a timetable, optionally activating it
// @Tags Generation
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.SaveRunRequest true "Save payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /generate/runs/{id}/save [post]
func (h *GenerationHandler) Save(c *gin.Context) {
	var req dto.SaveRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	timetable, err := h.service.Save(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}
