package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Gatekeeper/internal/domain"
)

// DecisionRepo — репозиторий результатов dispatch.
//
// Решение хранится построчно: одна строка job_results на JobSpec.
// Реализует orchestrator.DecisionPersister.
type DecisionRepo struct {
	pool *pgxpool.Pool
}

// NewDecisionRepo создаёт новый DecisionRepo.
func NewDecisionRepo(pool *pgxpool.Pool) *DecisionRepo {
	return &DecisionRepo{pool: pool}
}

// SaveDecision сохраняет все JobResult решения одной транзакцией.
func (r *DecisionRepo) SaveDecision(ctx context.Context, decision *domain.DispatchDecision) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO job_results
			(job_id, run_id, name, ref, outcome, status, best_effort, error, launched_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE
		SET outcome = EXCLUDED.outcome,
		    status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    finished_at = EXCLUDED.finished_at
	`
	for _, j := range decision.Jobs {
		_, err := tx.Exec(ctx, query,
			j.JobID,
			j.RunID,
			j.Name,
			j.Ref,
			j.Outcome,
			nullString(string(j.Status)),
			j.BestEffort,
			nullString(j.Error),
			j.LaunchedAt,
			j.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job result %s: %w", j.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListByRunID возвращает JobResult'ы run в порядке записи.
func (r *DecisionRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error) {
	query := `
		SELECT job_id, run_id, name, ref, outcome, status, best_effort, error,
		       launched_at, finished_at
		FROM job_results
		WHERE run_id = $1
		ORDER BY launched_at NULLS LAST, name
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	defer rows.Close()

	var results []domain.JobResult
	for rows.Next() {
		var j domain.JobResult
		var status, errMsg *string

		err := rows.Scan(
			&j.JobID,
			&j.RunID,
			&j.Name,
			&j.Ref,
			&j.Outcome,
			&status,
			&j.BestEffort,
			&errMsg,
			&j.LaunchedAt,
			&j.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}
		if status != nil {
			j.Status = domain.JobStatus(*status)
		}
		if errMsg != nil {
			j.Error = *errMsg
		}
		results = append(results, j)
	}
	return results, rows.Err()
}
