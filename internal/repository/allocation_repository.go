package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/timetable-api/internal/models"
)

// AllocationRepository persists batch-subject-faculty allocations and the
// fixed slot pins layered on top of them.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository creates a new repository instance.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// List returns every allocation with display names joined in.
func (r *AllocationRepository) List(ctx context.Context) ([]models.AllocationDetail, error) {
	const query = `SELECT a.id, a.batch_id, a.subject_id, a.faculty_id, a.created_at,
       b.name AS batch_name, s.code AS subject_code, s.name AS subject_name, f.name AS faculty_name
FROM allocations a
JOIN batches b ON b.id = a.batch_id
JOIN subjects s ON s.id = a.subject_id
JOIN faculty f ON f.id = a.faculty_id
ORDER BY b.name ASC, s.code ASC`
	var allocations []models.AllocationDetail
	if err := r.db.SelectContext(ctx, &allocations, query); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocations, nil
}

// ListPlain returns every allocation without joins, for snapshot assembly.
func (r *AllocationRepository) ListPlain(ctx context.Context) ([]models.Allocation, error) {
	const query = `SELECT id, batch_id, subject_id, faculty_id, created_at FROM allocations ORDER BY created_at ASC`
	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocations, nil
}

// Count returns the total number of allocations.
func (r *AllocationRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM allocations`); err != nil {
		return 0, fmt.Errorf("count allocations: %w", err)
	}
	return count, nil
}

// FindByID returns an allocation by id.
func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*models.Allocation, error) {
	const query = `SELECT id, batch_id, subject_id, faculty_id, created_at FROM allocations WHERE id = $1`
	var allocation models.Allocation
	if err := r.db.GetContext(ctx, &allocation, query, id); err != nil {
		return nil, err
	}
	return &allocation, nil
}

// Exists checks whether the batch-subject-faculty triple is already allocated.
func (r *AllocationRepository) Exists(ctx context.Context, batchID, subjectID, facultyID string) (bool, error) {
	const query = `SELECT 1 FROM allocations WHERE batch_id = $1 AND subject_id = $2 AND faculty_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, batchID, subjectID, facultyID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check allocation: %w", err)
	}
	return true, nil
}

// Create persists a new allocation.
func (r *AllocationRepository) Create(ctx context.Context, allocation *models.Allocation) error {
	if allocation.ID == "" {
		allocation.ID = uuid.NewString()
	}
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO allocations (id, batch_id, subject_id, faculty_id, created_at) VALUES (:id, :batch_id, :subject_id, :faculty_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, allocation); err != nil {
		return fmt.Errorf("create allocation: %w", err)
	}
	return nil
}

// Delete removes an allocation and any fixed slots pinned on its triple.
func (r *AllocationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete allocation tx: %w", err)
	}

	const slotQuery = `DELETE FROM fixed_slots WHERE (batch_id, subject_id, faculty_id) IN (SELECT batch_id, subject_id, faculty_id FROM allocations WHERE id = $1)`
	if _, err := tx.ExecContext(ctx, slotQuery, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete allocation fixed slots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM allocations WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete allocation tx: %w", err)
	}
	return nil
}

// ListFixedSlots returns every fixed slot pin.
func (r *AllocationRepository) ListFixedSlots(ctx context.Context) ([]models.FixedSlot, error) {
	const query = `SELECT id, batch_id, subject_id, faculty_id, room_id, day, period, created_at FROM fixed_slots ORDER BY day ASC, period ASC`
	var slots []models.FixedSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list fixed slots: %w", err)
	}
	return slots, nil
}

// FindFixedSlotByID returns a fixed slot by id.
func (r *AllocationRepository) FindFixedSlotByID(ctx context.Context, id string) (*models.FixedSlot, error) {
	const query = `SELECT id, batch_id, subject_id, faculty_id, room_id, day, period, created_at FROM fixed_slots WHERE id = $1`
	var slot models.FixedSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FixedSlotOccupied checks whether the batch already has a pin at the cell.
func (r *AllocationRepository) FixedSlotOccupied(ctx context.Context, batchID, day, period string) (bool, error) {
	const query = `SELECT 1 FROM fixed_slots WHERE batch_id = $1 AND day = $2 AND period = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, batchID, day, period); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check fixed slot cell: %w", err)
	}
	return true, nil
}

// CreateFixedSlot persists a new fixed slot pin.
func (r *AllocationRepository) CreateFixedSlot(ctx context.Context, slot *models.FixedSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fixed_slots (id, batch_id, subject_id, faculty_id, room_id, day, period, created_at) VALUES (:id, :batch_id, :subject_id, :faculty_id, :room_id, :day, :period, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create fixed slot: %w", err)
	}
	return nil
}

// DeleteFixedSlot removes a fixed slot pin.
func (r *AllocationRepository) DeleteFixedSlot(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fixed_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete fixed slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
