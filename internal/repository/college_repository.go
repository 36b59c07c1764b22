package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/timetable-api/internal/models"
)

// CollegeRepository persists the college profile. The table holds a single
// row that carries the institution name and the working calendar.
type CollegeRepository struct {
	db *sqlx.DB
}

// NewCollegeRepository constructs the repository.
func NewCollegeRepository(db *sqlx.DB) *CollegeRepository {
	return &CollegeRepository{db: db}
}

// Get fetches the college row. sql.ErrNoRows means setup has not run yet.
func (r *CollegeRepository) Get(ctx context.Context) (*models.College, error) {
	const query = `SELECT id, name, working_days, time_slots, created_at, updated_at FROM colleges ORDER BY created_at ASC LIMIT 1`
	var college models.College
	if err := r.db.GetContext(ctx, &college, query); err != nil {
		return nil, err
	}
	return &college, nil
}

// Upsert inserts or updates the college row.
func (r *CollegeRepository) Upsert(ctx context.Context, college *models.College) error {
	if college.ID == "" {
		college.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if college.CreatedAt.IsZero() {
		college.CreatedAt = now
	}
	college.UpdatedAt = now

	const query = `INSERT INTO colleges (id, name, working_days, time_slots, created_at, updated_at)
VALUES (:id, :name, :working_days, :time_slots, :created_at, :updated_at)
ON CONFLICT (id)
DO UPDATE SET name = EXCLUDED.name, working_days = EXCLUDED.working_days,
              time_slots = EXCLUDED.time_slots, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, college); err != nil {
		return fmt.Errorf("upsert college: %w", err)
	}
	return nil
}
