package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusmesh/timetable-api/internal/service"
	"github.com/campusmesh/timetable-api/pkg/response"
)

// ExportHandler serves signed export downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Download godoc
// @Summary Download an exported file
// @Description Serves the file behind a signed export token. The link expires
// @Description with the token; no session is required.
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed export token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	path, name, err := h.service.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, name)
}
