package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/dispatch"
	"github.com/shaiso/Gatekeeper/internal/domain"
)

// Superseder отслеживает активные Execution и отменяет вытесненные runs.
//
// Registry отвечает только за статусы: при Begin он помечает старые runs
// CANCELLED. Superseder доводит отмену до исполнения: находит Execution
// вытесненного run и просит его остановиться (пропустить незапущенные
// jobs, отправить best-effort отмену запущенным). Все ошибки отмены
// логируются и проглатываются: вытеснение не должно мешать новому run.
type Superseder struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]*dispatch.Execution
	logger     *slog.Logger
}

// NewSuperseder создаёт пустой Superseder.
func NewSuperseder(logger *slog.Logger) *Superseder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Superseder{
		executions: make(map[uuid.UUID]*dispatch.Execution),
		logger:     logger,
	}
}

// Track регистрирует Execution запущенного dispatch.
func (s *Superseder) Track(runID uuid.UUID, ex *dispatch.Execution) {
	s.mu.Lock()
	s.executions[runID] = ex
	s.mu.Unlock()
}

// Forget удаляет Execution завершённого run.
func (s *Superseder) Forget(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.executions, runID)
	s.mu.Unlock()
}

// Execution возвращает Execution run, nil если dispatch не идёт.
func (s *Superseder) Execution(runID uuid.UUID) *dispatch.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executions[runID]
}

// Active возвращает количество отслеживаемых dispatch.
func (s *Superseder) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.executions)
}

// CancelRuns best-effort отменяет dispatch каждого из runs.
//
// Run без Execution (dispatch ещё не начался или уже завершился) —
// no-op: его статус уже CANCELLED в registry, запускать нечего.
// Повторная отмена того же run — no-op (Execution.Cancel идемпотентен).
func (s *Superseder) CancelRuns(ctx context.Context, runs []*domain.Run) {
	for _, run := range runs {
		ex := s.Execution(run.ID)
		if ex == nil {
			s.logger.Debug("superseded run has no active dispatch",
				"run_id", run.ID,
				"change_id", run.ChangeID,
			)
			continue
		}

		ex.Cancel(ctx)
		s.logger.Info("superseded run dispatch cancelled",
			"run_id", run.ID,
			"change_id", run.ChangeID,
			"seq", run.Seq,
		)
	}
}
