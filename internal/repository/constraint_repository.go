package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/timetable-api/internal/models"
)

// ConstraintRepository persists constraint configurations.
type ConstraintRepository struct {
	db *sqlx.DB
}

// NewConstraintRepository constructs the repository.
func NewConstraintRepository(db *sqlx.DB) *ConstraintRepository {
	return &ConstraintRepository{db: db}
}

// List returns all constraint configs ordered by kind then name.
func (r *ConstraintRepository) List(ctx context.Context) ([]models.ConstraintConfig, error) {
	const query = `SELECT id, name, kind, enabled, weight, description, updated_at FROM constraint_configs ORDER BY kind ASC, name ASC`
	var configs []models.ConstraintConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list constraint configs: %w", err)
	}
	return configs, nil
}

// FindByName returns a constraint config by its unique name.
func (r *ConstraintRepository) FindByName(ctx context.Context, name string) (*models.ConstraintConfig, error) {
	const query = `SELECT id, name, kind, enabled, weight, description, updated_at FROM constraint_configs WHERE name = $1`
	var config models.ConstraintConfig
	if err := r.db.GetContext(ctx, &config, query, name); err != nil {
		return nil, err
	}
	return &config, nil
}

// Update modifies the enabled flag and weight of a constraint config.
func (r *ConstraintRepository) Update(ctx context.Context, config *models.ConstraintConfig) error {
	config.UpdatedAt = time.Now().UTC()
	const query = `UPDATE constraint_configs SET enabled = :enabled, weight = :weight, updated_at = :updated_at WHERE name = :name`
	if _, err := r.db.NamedExecContext(ctx, query, config); err != nil {
		return fmt.Errorf("update constraint config: %w", err)
	}
	return nil
}

// SeedDefaults inserts any missing constraint configs, leaving tuned rows
// untouched.
func (r *ConstraintRepository) SeedDefaults(ctx context.Context, defaults []models.ConstraintConfig) error {
	if len(defaults) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin constraint seed tx: %w", err)
	}
	const query = `INSERT INTO constraint_configs (id, name, kind, enabled, weight, description, updated_at)
VALUES (:id, :name, :kind, :enabled, :weight, :description, :updated_at)
ON CONFLICT (name) DO NOTHING`
	for i := range defaults {
		if defaults[i].ID == "" {
			defaults[i].ID = uuid.NewString()
		}
		defaults[i].UpdatedAt = time.Now().UTC()
		if _, err := tx.NamedExecContext(ctx, query, defaults[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("seed constraint config: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit constraint seed tx: %w", err)
	}
	return nil
}
