package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/storage"
)

type stubViewProvider struct {
	view *dto.TimetableView
	err  error
}

func (s *stubViewProvider) View(ctx context.Context, id, kind, entityID string) (*dto.TimetableView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

func sampleView() *dto.TimetableView {
	return &dto.TimetableView{
		TimetableID: "t1",
		Kind:        "batch",
		EntityID:    "b1",
		EntityName:  "CS-3A",
		Days:        []string{"monday", "tuesday"},
		Periods:     []string{"09:00", "10:00"},
		Rows: []dto.GridRow{
			{Day: "monday", Cells: []*dto.GridCell{
				{SubjectCode: "CS301", SubjectName: "Data Structures", FacultyName: "Asha Rao", RoomName: "C-101", Kind: "theory"},
				nil,
			}},
			{Day: "tuesday", Cells: []*dto.GridCell{nil, nil}},
		},
	}
}

func newExportFixture(t *testing.T, views *stubViewProvider) (*ExportService, *mockActivityLog) {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	audit := &mockActivityLog{}
	svc := NewExportService(views, store, signer, audit, validator.New(), zap.NewNop(), ExportConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
	}, nil, nil)
	return svc, audit
}

func TestExportCSVRoundTrip(t *testing.T) {
	svc, audit := newExportFixture(t, &stubViewProvider{view: sampleView()})

	res, err := svc.Export(context.Background(), models.Actor{ID: "u1", Username: "admin"}, "t1", dto.ExportRequest{
		Format: "csv",
		Kind:   "batch",
		ID:     "b1",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs-3a-timetable.csv", res.FileName)
	assert.Equal(t, "csv", res.Format)
	assert.True(t, strings.HasPrefix(res.URL, "/api/v1/export/"))
	assert.True(t, res.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(res.URL, "/api/v1/export/")
	path, name, err := svc.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, res.ExportID+".csv", name)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(payload)
	assert.Contains(t, content, "Period,monday,tuesday")
	assert.Contains(t, content, "09:00,CS301 / Asha Rao / C-101,")
	assert.Contains(t, content, "10:00,,")

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityExport, audit.entries[0].Action)
}

func TestExportPDFProducesDocument(t *testing.T) {
	svc, _ := newExportFixture(t, &stubViewProvider{view: sampleView()})

	res, err := svc.Export(context.Background(), models.Actor{ID: "u1"}, "t1", dto.ExportRequest{
		Format: "pdf",
		Kind:   "batch",
		ID:     "b1",
	})
	require.NoError(t, err)

	token := strings.TrimPrefix(res.URL, "/api/v1/export/")
	path, _, err := svc.Resolve(token)
	require.NoError(t, err)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportFixture(t, &stubViewProvider{view: sampleView()})

	_, err := svc.Export(context.Background(), models.Actor{}, "t1", dto.ExportRequest{
		Format: "xlsx",
		Kind:   "batch",
		ID:     "b1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportPropagatesViewErrors(t *testing.T) {
	svc, _ := newExportFixture(t, &stubViewProvider{err: appErrors.Clone(appErrors.ErrNotFound, "timetable not found")})

	_, err := svc.Export(context.Background(), models.Actor{}, "missing", dto.ExportRequest{
		Format: "csv",
		Kind:   "batch",
		ID:     "b1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestResolveRejectsForgedToken(t *testing.T) {
	svc, _ := newExportFixture(t, &stubViewProvider{view: sampleView()})

	_, _, err := svc.Resolve("not.a.valid.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
