package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/service"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// AllocationHandler handles teaching allocations and pinned slots.
type AllocationHandler struct {
	service *service.AllocationService
}

// NewAllocationHandler constructs an allocation handler.
func NewAllocationHandler(svc *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{service: svc}
}

// List godoc
// @Summary List allocations
// @Description Lists batch-subject-faculty assignments with resolved names
// @Tags Allocations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations [get]
func (h *AllocationHandler) List(c *gin.Context) {
	allocations, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, allocations, nil)
}

// Create godoc
// @Summary Create allocation
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body service.CreateAllocationRequest true "Allocation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /allocations [post]
func (h *AllocationHandler) Create(c *gin.Context) {
	var req service.CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	allocation, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, allocation)
}

// Delete godoc
// @Summary Delete allocation
// @Tags Allocations
// @Produce json
// @Param id path string true "Allocation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /allocations/{id} [delete]
func (h *AllocationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListFixedSlots godoc
// @Summary List fixed slots
// @Description Lists slots pinned to a specific day and period
// @Tags Allocations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fixed-slots [get]
func (h *AllocationHandler) ListFixedSlots(c *gin.Context) {
	slots, err := h.service.ListFixedSlots(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// CreateFixedSlot godoc
// @Summary Pin a slot
// @Description Pins an allocation to a day and period ahead of generation
// @Tags Allocations
// @Accept json
// @Produce json
// @Param payload body service.CreateFixedSlotRequest true "Fixed slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fixed-slots [post]
func (h *AllocationHandler) CreateFixedSlot(c *gin.Context) {
	var req service.CreateFixedSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	slot, err := h.service.CreateFixedSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// DeleteFixedSlot godoc
// @Summary Unpin a slot
// @Tags Allocations
// @Produce json
// @Param id path string true "Fixed slot ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fixed-slots/{id} [delete]
func (h *AllocationHandler) DeleteFixedSlot(c *gin.Context) {
	if err := h.service.DeleteFixedSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
