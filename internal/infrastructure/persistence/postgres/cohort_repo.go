package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CohortRepository implements cohort.Repository for PostgreSQL.
type CohortRepository struct {
	conn *Connection
}

// NewCohortRepository creates a new CohortRepository.
func NewCohortRepository(conn *Connection) *CohortRepository {
	return &CohortRepository{conn: conn}
}

const cohortColumns = `id, name, start_date, timezone, is_active, current_day, current_phase, created_at, updated_at`

// Create inserts a cohort.
func (r *CohortRepository) Create(ctx context.Context, c *cohort.Cohort) error {
	query := `
		INSERT INTO cohorts (` + cohortColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.Name,
		c.StartDate,
		c.Timezone,
		c.IsActive,
		c.CurrentDay,
		string(c.CurrentPhase),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("cohort", "Create", shared.ErrAlreadyExists, "cohort already exists")
		}
		return shared.WrapError("cohort", "Create", shared.ErrPersistenceFailure, "insert cohort", err)
	}

	return nil
}

// GetByID returns a cohort by ID.
func (r *CohortRepository) GetByID(ctx context.Context, id string) (*cohort.Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM cohorts WHERE id = $1`

	c, err := scanCohort(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCohortNotFound
		}
		return nil, shared.WrapError("cohort", "GetByID", shared.ErrPersistenceFailure, "select cohort", err)
	}
	return c, nil
}

// ListActive returns active cohorts ordered by start date.
func (r *CohortRepository) ListActive(ctx context.Context) ([]*cohort.Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM cohorts WHERE is_active ORDER BY start_date, id`
	return r.list(ctx, "ListActive", query)
}

// ListAll returns every cohort ordered by start date.
func (r *CohortRepository) ListAll(ctx context.Context) ([]*cohort.Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM cohorts ORDER BY start_date, id`
	return r.list(ctx, "ListAll", query)
}

func (r *CohortRepository) list(ctx context.Context, op, query string, args ...any) ([]*cohort.Cohort, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("cohort", op, shared.ErrPersistenceFailure, "query cohorts", err)
	}
	defer rows.Close()

	var out []*cohort.Cohort
	for rows.Next() {
		c, err := scanCohort(rows)
		if err != nil {
			return nil, shared.WrapError("cohort", op, shared.ErrPersistenceFailure, "scan cohort", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("cohort", op, shared.ErrPersistenceFailure, "iterate cohorts", err)
	}
	return out, nil
}

// UpdateCalendar stores the cached day and phase.
func (r *CohortRepository) UpdateCalendar(ctx context.Context, id string, day int, phase calendar.Phase, at time.Time) error {
	query := `
		UPDATE cohorts SET current_day = $1, current_phase = $2, updated_at = $3
		WHERE id = $4
	`

	tag, err := r.conn.Exec(ctx, query, day, string(phase), at, id)
	if err != nil {
		return shared.WrapError("cohort", "UpdateCalendar", shared.ErrPersistenceFailure, "update cohort calendar", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCohortNotFound
	}
	return nil
}

// SetActive activates or deactivates a cohort.
func (r *CohortRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	query := `UPDATE cohorts SET is_active = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.conn.Exec(ctx, query, active, at, id)
	if err != nil {
		return shared.WrapError("cohort", "SetActive", shared.ErrPersistenceFailure, "update cohort", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCohortNotFound
	}
	return nil
}

func scanCohort(row pgx.Row) (*cohort.Cohort, error) {
	var (
		c     cohort.Cohort
		phase string
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.StartDate,
		&c.Timezone,
		&c.IsActive,
		&c.CurrentDay,
		&phase,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CurrentPhase = calendar.Phase(phase)
	return &c, nil
}

var _ cohort.Repository = (*CohortRepository)(nil)
