package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/runner"
	"github.com/shaiso/Gatekeeper/internal/secrets"
)

// Dispatcher принимает решение о запуске jobs для run.
//
// Dispatcher не хранит состояния между run'ами: вся конфигурация —
// в gating-таблице, всё runtime-состояние — в Execution.
type Dispatcher struct {
	table   *gating.Table
	runner  runner.Runner
	secrets secrets.Store
	logger  *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(table *gating.Table, r runner.Runner, store secrets.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		table:   table,
		runner:  r,
		secrets: store,
		logger:  logger,
	}
}

// Execution — dispatch одного run.
//
// Создаётся через Dispatcher.Start и завершается либо естественно
// (все jobs получили исход), либо через Cancel при вытеснении run.
type Execution struct {
	runID    uuid.UUID
	decision *domain.DispatchDecision

	state *dispatchState
	wg    sync.WaitGroup

	// abort отменяет внутренний контекст jobs.
	abort     context.CancelFunc
	cancelled atomic.Bool

	mu      sync.Mutex
	handles []runner.Handle

	r      runner.Runner
	logger *slog.Logger
}

// Start запускает dispatch для run с вычисленными флагами классификации.
//
// Каждый JobSpec обрабатывается в своей горутине: она ждёт завершения
// upstream-зависимостей (без busy-wait, на каналах), затем вычисляет
// guard и запускает job. Результат доступен через Wait.
func (d *Dispatcher) Start(ctx context.Context, run *domain.Run) *Execution {
	names := make([]string, len(d.table.Jobs))
	for i := range d.table.Jobs {
		names[i] = d.table.Jobs[i].Name
	}

	jobCtx, abort := context.WithCancel(ctx)

	ex := &Execution{
		runID: run.ID,
		decision: &domain.DispatchDecision{
			RunID:     run.ID,
			CreatedAt: time.Now(),
		},
		state:  newDispatchState(names),
		abort:  abort,
		r:      d.runner,
		logger: d.logger.With("run_id", run.ID, "change_id", run.ChangeID),
	}

	for i := range d.table.Jobs {
		spec := &d.table.Jobs[i]
		ex.wg.Add(1)
		go func() {
			defer ex.wg.Done()
			result := d.processJob(jobCtx, ex, run, spec)
			ex.state.finish(spec.Name, result)
		}()
	}

	return ex
}

// Wait блокирует до завершения dispatch и возвращает итоговое решение.
// Отмена ctx прекращает ожидание, но не сам dispatch.
func (ex *Execution) Wait(ctx context.Context) (*domain.DispatchDecision, error) {
	finished := make(chan struct{})
	go func() {
		ex.wg.Wait()
		close(finished)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-finished:
	}

	// Собираем результаты в порядке объявления JobSpec
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.decision.Jobs == nil {
		for _, name := range ex.state.order() {
			ex.decision.Jobs = append(ex.decision.Jobs, ex.state.result(name))
		}
	}
	return ex.decision, nil
}

// Cancel отменяет dispatch: ещё не запущенные jobs получают
// SKIPPED_RUN_CANCELLED, уже запущенным отправляется best-effort
// запрос отмены. Идемпотентен, ошибок отмены не возвращает.
func (ex *Execution) Cancel(ctx context.Context) {
	if !ex.cancelled.CompareAndSwap(false, true) {
		return
	}

	ex.abort()

	ex.mu.Lock()
	handles := make([]runner.Handle, len(ex.handles))
	copy(handles, ex.handles)
	ex.mu.Unlock()

	for _, h := range handles {
		if err := ex.r.Cancel(ctx, h); err != nil {
			ex.logger.Warn("job cancel request failed",
				"job_id", h.JobID,
				"error", err,
			)
		}
	}

	ex.logger.Info("dispatch cancelled", "launched", len(handles))
}

// Cancelled возвращает true, если dispatch был отменён.
func (ex *Execution) Cancelled() bool {
	return ex.cancelled.Load()
}

// registerHandle запоминает запущенный job для последующей отмены.
func (ex *Execution) registerHandle(h runner.Handle) {
	ex.mu.Lock()
	ex.handles = append(ex.handles, h)
	ex.mu.Unlock()
}

// processJob выполняет полный цикл одного JobSpec: ожидание upstream,
// guard, секреты, запуск, ожидание терминального статуса.
func (d *Dispatcher) processJob(ctx context.Context, ex *Execution, run *domain.Run, spec *gating.JobSpec) *domain.JobResult {
	result := &domain.JobResult{
		JobID:      uuid.New(),
		RunID:      run.ID,
		Name:       spec.Name,
		Ref:        spec.Ref,
		BestEffort: spec.BestEffort,
	}

	log := ex.logger.With("job", spec.Name)

	// 1. Ждём upstream-зависимости
	for _, upstream := range spec.Needs {
		select {
		case <-ctx.Done():
			result.Outcome = domain.OutcomeSkippedRunCancelled
			return result
		case <-ex.state.slot(upstream).done:
		}
	}

	// 2. Guard над флагами классификации
	if !spec.GuardOrTrue().Eval(run.Flags) {
		result.Outcome = domain.OutcomeSkippedGuardFalse
		log.Debug("job skipped: guard false", "guard", spec.GuardOrTrue().String())
		return result
	}

	// 3. Все upstream должны завершиться успешно
	for _, upstream := range spec.Needs {
		up := ex.state.result(upstream)
		if !up.Succeeded() {
			result.Outcome = domain.OutcomeSkippedUpstreamFailed
			result.Error = fmt.Sprintf("upstream %s: %s", upstream, upstreamReason(up))
			log.Info("job skipped: upstream not successful", "upstream", upstream)
			return result
		}
	}

	// 4. Отмена могла прийти, пока ждали upstream
	if ctx.Err() != nil || ex.Cancelled() {
		result.Outcome = domain.OutcomeSkippedRunCancelled
		return result
	}

	// 5. Секреты: только объявленные, отсутствие любого — отказ от запуска
	resolved, err := secrets.Resolve(d.secrets, spec.Secrets)
	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Error = err.Error()
		log.Error("job not launched: secret resolution failed", "error", err)
		return result
	}

	// 6. Запуск
	handle, err := d.runner.Invoke(ctx, runner.InvokeRequest{
		JobID:   result.JobID,
		RunID:   run.ID,
		Ref:     spec.Ref,
		Params:  spec.Params,
		Secrets: resolved,
	})
	if err != nil {
		if ex.Cancelled() {
			result.Outcome = domain.OutcomeSkippedRunCancelled
			return result
		}
		result.Outcome = domain.OutcomeFailed
		result.Error = err.Error()
		log.Error("job not launched: invoke rejected", "error", err)
		return result
	}

	now := time.Now()
	result.Outcome = domain.OutcomeLaunched
	result.LaunchedAt = &now
	ex.registerHandle(handle)

	log.Info("job launched", "job_id", result.JobID, "ref", spec.Ref)

	// 7. Ждём терминальный статус
	watch, err := d.runner.Watch(ctx, handle)
	if err != nil {
		result.Status = domain.JobStatusFailed
		result.Error = err.Error()
		return result
	}

	res, ok := <-watch
	finished := time.Now()
	result.FinishedAt = &finished

	if !ok {
		// Канал закрыт без результата: dispatch отменён до завершения job
		result.Status = domain.JobStatusCancelled
		return result
	}

	result.Status = res.Status
	result.Error = res.Error

	log.Info("job finished", "job_id", result.JobID, "status", res.Status)
	return result
}

// upstreamReason описывает, почему upstream считается неуспешным.
func upstreamReason(up *domain.JobResult) string {
	if up.Outcome == domain.OutcomeLaunched {
		return string(up.Status)
	}
	return string(up.Outcome)
}
