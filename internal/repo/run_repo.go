package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Gatekeeper/internal/domain"
)

// RunRepo — репозиторий runs.
//
// Реализует registry.Persister: registry зеркалирует сюда каждый run
// и каждое изменение статуса. БД — история для API и CLI; инвариант
// "один активный run на ChangeID" держит registry, а не БД.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// SaveRun вставляет новый run.
func (r *RunRepo) SaveRun(ctx context.Context, run *domain.Run) error {
	eventJSON, err := json.Marshal(run.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	query := `
		INSERT INTO runs (id, seq, change_id, event, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Seq,
		run.ChangeID,
		eventJSON,
		run.Status,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun обновляет изменяемые поля run.
func (r *RunRepo) UpdateRun(ctx context.Context, run *domain.Run) error {
	var flagsJSON []byte
	if run.Flags != nil {
		var err error
		flagsJSON, err = json.Marshal(run.Flags)
		if err != nil {
			return fmt.Errorf("marshal flags: %w", err)
		}
	}

	query := `
		UPDATE runs
		SET status = $2, flags = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		flagsJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, seq, change_id, event, status, flags, error,
		       started_at, finished_at, created_at
		FROM runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	ChangeID string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// List возвращает runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT id, seq, change_id, event, status, flags, error,
		       started_at, finished_at, created_at
		FROM runs
		WHERE ($1::text IS NULL OR change_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ChangeID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListActive возвращает runs в PENDING или RUNNING, старые первыми.
func (r *RunRepo) ListActive(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `
		SELECT id, seq, change_id, event, status, flags, error,
		       started_at, finished_at, created_at
		FROM runs
		WHERE status IN ('PENDING', 'RUNNING')
		ORDER BY seq ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует строку в Run. Работает и с Row, и с Rows.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var eventJSON, flagsJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.ChangeID,
		&eventJSON,
		&run.Status,
		&flagsJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if eventJSON != nil {
		if err := json.Unmarshal(eventJSON, &run.Event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
	}
	if flagsJSON != nil {
		if err := json.Unmarshal(flagsJSON, &run.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
