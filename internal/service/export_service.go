package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/export"
	"github.com/campusmesh/timetable-api/pkg/storage"
)

type timetableViewProvider interface {
	View(ctx context.Context, id, kind, entityID string) (*dto.TimetableView, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export rendering and download-link lifetime.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders timetable views into downloadable CSV or PDF files
// and serves them through signed, expiring links.
type ExportService struct {
	views     timetableViewProvider
	storage   exportStorage
	signer    *storage.SignedURLSigner
	csv       datasetRenderer
	pdf       datasetRenderer
	audit     activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the bundled CSV and PDF exporters.
func NewExportService(views timetableViewProvider, store exportStorage, signer *storage.SignedURLSigner, audit activityRecorder, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		views:     views,
		storage:   store,
		signer:    signer,
		csv:       csv,
		pdf:       pdf,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Export renders one entity's view of a timetable and returns a signed
// download link.
func (s *ExportService) Export(ctx context.Context, actor models.Actor, timetableID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	view, err := s.views.View(ctx, timetableID, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	dataset := datasetFromView(view)

	var payload []byte
	switch req.Format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "export format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(fmt.Sprintf("timetables/%s.%s", exportID, req.Format), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.recordExportActivity(ctx, actor, timetableID, map[string]interface{}{
		"format":    req.Format,
		"kind":      req.Kind,
		"entity_id": req.ID,
	})
	s.logger.Info("timetable exported",
		zap.String("timetable_id", timetableID),
		zap.String("kind", req.Kind),
		zap.String("format", req.Format),
		zap.Int("bytes", len(payload)))

	return &dto.ExportResponse{
		ExportID:  exportID,
		FileName:  fmt.Sprintf("%s-timetable.%s", sanitizeExportName(view.EntityName), req.Format),
		Format:    req.Format,
		URL:       fmt.Sprintf("%s/export/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a download token and returns the absolute file path plus
// a download name. Invalid and expired tokens are indistinguishable to the
// caller.
func (s *ExportService) Resolve(token string) (string, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found or link expired")
	}
	return s.storage.Path(relPath), filepath.Base(relPath), nil
}

// StartCleanup periodically removes export files older than the configured
// TTL until the context is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

func (s *ExportService) recordExportActivity(ctx context.Context, actor models.Actor, timetableID string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	entry := &models.ActivityLog{
		Username:  actor.Username,
		Action:    models.ActivityExport,
		Entity:    "timetables",
		Detail:    types.JSONText(payload),
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.ID != "" {
		entry.UserID = &actor.ID
	}
	if timetableID != "" {
		entry.EntityID = &timetableID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record export activity", zap.Error(err))
	}
}

// datasetFromView transposes a grid view into printable rows: periods down
// the side, one column per working day.
func datasetFromView(view *dto.TimetableView) export.Dataset {
	headers := make([]string, 0, len(view.Days)+1)
	headers = append(headers, "Period")
	headers = append(headers, view.Days...)

	rows := make([][]string, len(view.Periods))
	for p, period := range view.Periods {
		row := make([]string, len(view.Days)+1)
		row[0] = period
		for d := range view.Days {
			row[d+1] = cellText(view.Rows[d].Cells[p])
		}
		rows[p] = row
	}

	return export.Dataset{
		Title:   view.EntityName + " timetable",
		Headers: headers,
		Rows:    rows,
	}
}

func cellText(cell *dto.GridCell) string {
	if cell == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	if cell.BatchName != "" {
		parts = append(parts, cell.BatchName)
	}
	switch {
	case cell.SubjectCode != "":
		parts = append(parts, cell.SubjectCode)
	case cell.SubjectName != "":
		parts = append(parts, cell.SubjectName)
	}
	if cell.FacultyName != "" {
		parts = append(parts, cell.FacultyName)
	}
	if cell.RoomName != "" {
		parts = append(parts, cell.RoomName)
	}
	text := strings.Join(parts, " / ")
	if cell.IsFixed {
		text += " *"
	}
	return text
}

func sanitizeExportName(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	replacer := strings.NewReplacer(" ", "-", "/", "-", "\\", "-", ":", "-", ".", "-")
	name := replacer.Replace(raw)
	if name == "" {
		return "timetable"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return name
}
