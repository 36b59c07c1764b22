package dto

import "time"

// ExportRequest renders a timetable view to a downloadable file.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	Kind   string `json:"kind" validate:"required,oneof=batch faculty room"`
	ID     string `json:"id" validate:"required"`
}

// ExportResponse returns the signed download URL for a rendered export.
type ExportResponse struct {
	ExportID  string    `json:"export_id"`
	FileName  string    `json:"file_name"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
