package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/solver"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

// View kinds narrow a timetable grid to one entity's perspective.
const (
	ViewKindBatch   = "batch"
	ViewKindFaculty = "faculty"
	ViewKindRoom    = "room"
)

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	ListSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
	CountSlots(ctx context.Context, timetableID string) (int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
	ArchiveActive(ctx context.Context, exec sqlx.ExtContext, exceptID string) error
	Delete(ctx context.Context, id string) error
}

type viewBatchSource interface {
	ListAll(ctx context.Context) ([]models.Batch, error)
}

type viewSubjectSource interface {
	ListAll(ctx context.Context) ([]models.Subject, error)
}

type viewFacultySource interface {
	ListAll(ctx context.Context) ([]models.Faculty, error)
}

type viewRoomSource interface {
	ListAll(ctx context.Context) ([]models.Room, error)
}

// TimetableService manages saved timetables: listing, activation, grid views
// and re-validation against the current hard rules.
type TimetableService struct {
	repo      timetableRepository
	txs       txProvider
	snapshots snapshotProvider
	college   calendarProvider
	batches   viewBatchSource
	subjects  viewSubjectSource
	faculty   viewFacultySource
	rooms     viewRoomSource
	cache     *CacheService
	audit     activityRecorder
	logger    *zap.Logger
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(repo timetableRepository, txs txProvider, snapshots snapshotProvider, college calendarProvider, batches viewBatchSource, subjects viewSubjectSource, faculty viewFacultySource, rooms viewRoomSource, cache *CacheService, audit activityRecorder, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		repo:      repo,
		txs:       txs,
		snapshots: snapshots,
		college:   college,
		batches:   batches,
		subjects:  subjects,
		faculty:   faculty,
		rooms:     rooms,
		cache:     cache,
		audit:     audit,
		logger:    logger,
	}
}

// List returns saved timetables with pagination metadata.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	timetables, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return timetables, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get loads one timetable and its slot count.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, int, error) {
	timetable, err := s.find(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountSlots(ctx, timetable.ID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count timetable slots")
	}
	return timetable, count, nil
}

// Activate promotes a timetable to active, archiving the previous active one
// in the same transaction. Activating the already active timetable is a
// no-op.
func (s *TimetableService) Activate(ctx context.Context, actor models.Actor, id string) (timetable *models.Timetable, err error) {
	timetable, err = s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if timetable.Status == models.TimetableStatusActive {
		return timetable, nil
	}

	tx, err := s.txs.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin activation transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.ArchiveActive(ctx, tx, timetable.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive active timetable")
	}
	if err = s.repo.UpdateStatus(ctx, tx, timetable.ID, models.TimetableStatusActive); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate timetable")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit activation")
	}
	timetable.Status = models.TimetableStatusActive

	s.invalidateAnalytics(ctx)
	s.recordTimetableActivity(ctx, actor, models.ActivityTimetableActivate, timetable.ID, map[string]interface{}{"name": timetable.Name})
	s.logger.Info("timetable activated", zap.String("timetable_id", timetable.ID), zap.String("name", timetable.Name))
	return timetable, nil
}

// Delete removes a timetable and its slots. The active timetable cannot be
// deleted.
func (s *TimetableService) Delete(ctx context.Context, actor models.Actor, id string) error {
	timetable, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if timetable.Status == models.TimetableStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete the active timetable, activate another one first")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}

	s.invalidateAnalytics(ctx)
	s.recordTimetableActivity(ctx, actor, models.ActivityTimetableDelete, id, map[string]interface{}{"name": timetable.Name})
	return nil
}

// View renders a timetable as a day-by-period grid for one batch, faculty
// member or room.
func (s *TimetableService) View(ctx context.Context, id, kind, entityID string) (*dto.TimetableView, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case ViewKindBatch, ViewKindFaculty, ViewKindRoom:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "view kind must be batch, faculty or room")
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entity id is required")
	}

	timetable, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	cal, err := s.college.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := s.repo.ListSlots(ctx, timetable.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}
	names, err := s.loadNames(ctx)
	if err != nil {
		return nil, err
	}

	entityName, ok := names.entityName(kind, entityID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown "+kind+" id")
	}

	view := &dto.TimetableView{
		TimetableID: timetable.ID,
		Kind:        kind,
		EntityID:    entityID,
		EntityName:  entityName,
		Days:        append([]string(nil), cal.Days...),
		Periods:     append([]string(nil), cal.Periods...),
		Rows:        make([]dto.GridRow, len(cal.Days)),
	}
	for i, day := range cal.Days {
		view.Rows[i] = dto.GridRow{Day: day, Cells: make([]*dto.GridCell, len(cal.Periods))}
	}

	for _, slot := range slots {
		if !slotMatches(slot, kind, entityID) {
			continue
		}
		if slot.DayIndex < 0 || slot.DayIndex >= len(cal.Days) || slot.PeriodIndex < 0 || slot.PeriodIndex >= len(cal.Periods) {
			// Saved against a larger calendar; the cell no longer exists.
			s.logger.Warn("slot outside current calendar",
				zap.String("timetable_id", timetable.ID),
				zap.Int("day_index", slot.DayIndex),
				zap.Int("period_index", slot.PeriodIndex))
			continue
		}
		cell := names.cell(slot)
		if kind == ViewKindBatch {
			cell.BatchID = ""
			cell.BatchName = ""
		}
		view.Rows[slot.DayIndex].Cells[slot.PeriodIndex] = cell
	}
	return view, nil
}

// Validate re-checks a saved timetable against the currently enabled hard
// constraints. Catalogue edits after a save can make an old timetable
// invalid.
func (s *TimetableService) Validate(ctx context.Context, id string) (*dto.ValidationReport, error) {
	timetable, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := s.repo.ListSlots(ctx, timetable.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}

	scheduled := make([]domain.ScheduledSlot, 0, len(slots))
	for _, slot := range slots {
		entry := domain.ScheduledSlot{
			BatchID:     slot.BatchID,
			DayIndex:    slot.DayIndex,
			PeriodIndex: slot.PeriodIndex,
			SubjectID:   slot.SubjectID,
			FacultyID:   slot.FacultyID,
			RoomID:      slot.RoomID,
			Fixed:       slot.IsFixed,
		}
		if room, ok := snap.RoomByID(slot.RoomID); ok {
			entry.RoomKind = room.Kind
		}
		scheduled = append(scheduled, entry)
	}

	report := &dto.ValidationReport{TimetableID: timetable.ID}
	for _, conflict := range solver.ValidateSchedule(snap, scheduled) {
		report.Conflicts = append(report.Conflicts, dto.ConflictPayload{
			Constraint:  conflict.Constraint,
			DayIndex:    conflict.DayIndex,
			PeriodIndex: conflict.PeriodIndex,
			EntityID:    conflict.EntityID,
			Count:       conflict.Count,
			Message:     conflict.String(),
		})
	}
	report.Valid = len(report.Conflicts) == 0
	return report, nil
}

func (s *TimetableService) find(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

func (s *TimetableService) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, cachePatternAnalytics); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

func (s *TimetableService) recordTimetableActivity(ctx context.Context, actor models.Actor, action, entityID string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	entry := &models.ActivityLog{
		Username:  actor.Username,
		Action:    action,
		Entity:    "timetables",
		Detail:    types.JSONText(payload),
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.ID != "" {
		entry.UserID = &actor.ID
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record timetable activity", zap.String("action", action), zap.Error(err))
	}
}

type nameIndex struct {
	batches  map[string]models.Batch
	subjects map[string]models.Subject
	faculty  map[string]models.Faculty
	rooms    map[string]models.Room
}

func (s *TimetableService) loadNames(ctx context.Context) (*nameIndex, error) {
	batches, err := s.batches.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	subjects, err := s.subjects.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	faculty, err := s.faculty.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	rooms, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}

	idx := &nameIndex{
		batches:  make(map[string]models.Batch, len(batches)),
		subjects: make(map[string]models.Subject, len(subjects)),
		faculty:  make(map[string]models.Faculty, len(faculty)),
		rooms:    make(map[string]models.Room, len(rooms)),
	}
	for _, b := range batches {
		idx.batches[b.ID] = b
	}
	for _, sub := range subjects {
		idx.subjects[sub.ID] = sub
	}
	for _, f := range faculty {
		idx.faculty[f.ID] = f
	}
	for _, r := range rooms {
		idx.rooms[r.ID] = r
	}
	return idx, nil
}

func (n *nameIndex) entityName(kind, id string) (string, bool) {
	switch kind {
	case ViewKindBatch:
		b, ok := n.batches[id]
		return b.Name, ok
	case ViewKindFaculty:
		f, ok := n.faculty[id]
		return f.Name, ok
	case ViewKindRoom:
		r, ok := n.rooms[id]
		return r.Name, ok
	}
	return "", false
}

func (n *nameIndex) cell(slot models.TimetableSlot) *dto.GridCell {
	cell := &dto.GridCell{
		BatchID:   slot.BatchID,
		SubjectID: slot.SubjectID,
		FacultyID: slot.FacultyID,
		RoomID:    slot.RoomID,
		Kind:      slot.Kind,
		IsFixed:   slot.IsFixed,
	}
	if b, ok := n.batches[slot.BatchID]; ok {
		cell.BatchName = b.Name
	}
	if sub, ok := n.subjects[slot.SubjectID]; ok {
		cell.SubjectCode = sub.Code
		cell.SubjectName = sub.Name
	}
	if f, ok := n.faculty[slot.FacultyID]; ok {
		cell.FacultyName = f.Name
	}
	if r, ok := n.rooms[slot.RoomID]; ok {
		cell.RoomName = r.Name
	}
	return cell
}

func slotMatches(slot models.TimetableSlot, kind, entityID string) bool {
	switch kind {
	case ViewKindBatch:
		return slot.BatchID == entityID
	case ViewKindFaculty:
		return slot.FacultyID == entityID
	case ViewKindRoom:
		return slot.RoomID == entityID
	}
	return false
}
