package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusmesh/timetable-api/internal/models"
)

// TimetableRepository persists saved timetables and their slots.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a timetable row.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusDraft
	}
	if len(timetable.BatchIDs) == 0 {
		timetable.BatchIDs = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	target := r.exec(exec)
	const query = `
INSERT INTO timetables (id, name, algorithm, status, fitness_score, batch_ids, created_by, elapsed_ms, created_at, updated_at)
VALUES (:id, :name, :algorithm, :status, :fitness_score, :batch_ids, :created_by, :elapsed_ms, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// InsertSlots bulk-inserts the slots of a timetable.
func (r *TimetableRepository) InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_id, batch_id, subject_id, faculty_id, room_id, day_index, period_index, kind, is_fixed, created_at)
VALUES (:id, :timetable_id, :batch_id, :subject_id, :faculty_id, :room_id, :day_index, :period_index, :kind, :is_fixed, :created_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert timetable slot: %w", err)
		}
	}
	return nil
}

// List returns timetables matching filters with pagination metadata.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := "FROM timetables WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Algorithm != "" {
		conditions = append(conditions, fmt.Sprintf("algorithm = $%d", len(args)+1))
		args = append(args, filter.Algorithm)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"name":          true,
		"algorithm":     true,
		"status":        true,
		"fitness_score": true,
		"created_at":    true,
		"updated_at":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, name, algorithm, status, fitness_score, batch_ids, created_by, elapsed_ms, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	return timetables, total, nil
}

// FindByID loads a timetable by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, name, algorithm, status, fitness_score, batch_ids, created_by, elapsed_ms, created_at, updated_at FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindActive returns the currently active timetable.
func (r *TimetableRepository) FindActive(ctx context.Context) (*models.Timetable, error) {
	const query = `SELECT id, name, algorithm, status, fitness_score, batch_ids, created_by, elapsed_ms, created_at, updated_at FROM timetables WHERE status = 'active' ORDER BY updated_at DESC LIMIT 1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// ListSlots returns the slots of a timetable ordered by day and period.
func (r *TimetableRepository) ListSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_id, batch_id, subject_id, faculty_id, room_id, day_index, period_index, kind, is_fixed, created_at
FROM timetable_slots WHERE timetable_id = $1 ORDER BY day_index ASC, period_index ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// CountSlots returns the slot count of a timetable.
func (r *TimetableRepository) CountSlots(ctx context.Context, timetableID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM timetable_slots WHERE timetable_id = $1`, timetableID); err != nil {
		return 0, fmt.Errorf("count timetable slots: %w", err)
	}
	return count, nil
}

// Count returns the total number of saved timetables.
func (r *TimetableRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM timetables`); err != nil {
		return 0, fmt.Errorf("count timetables: %w", err)
	}
	return count, nil
}

// UpdateStatus updates the lifecycle status of a timetable.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, `UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveActive archives every active timetable except the one being
// promoted.
func (r *TimetableRepository) ArchiveActive(ctx context.Context, exec sqlx.ExtContext, exceptID string) error {
	target := r.exec(exec)
	const query = `UPDATE timetables SET status = 'archived', updated_at = $1 WHERE status = 'active' AND id <> $2`
	if _, err := target.ExecContext(ctx, query, time.Now().UTC(), exceptID); err != nil {
		return fmt.Errorf("archive active timetables: %w", err)
	}
	return nil
}

// Delete removes a timetable and, through the slot foreign key, its slots.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
