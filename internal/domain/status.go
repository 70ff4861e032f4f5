package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING, при вытеснении)
type RunStatus string

const (
	// RunStatusPending — run создан, но dispatch ещё не начался.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе dispatch / ожидания jobs.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — все запущенные jobs завершились, run успешен.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — run завершился с ошибкой (классификация или jobs).
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run вытеснен более новым или отменён вручную.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — статус внешнего job, запущенного через Job Runner.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (best-effort отмена)
type JobStatus string

const (
	// JobStatusPending — job принят субстратом, но ещё не стартовал.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — job выполняется.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSucceeded — job успешно завершён.
	JobStatusSucceeded JobStatus = "SUCCEEDED"

	// JobStatusFailed — job завершился с ошибкой.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled — job отменён.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobOutcome — итог обработки одного JobSpec в рамках DispatchDecision.
type JobOutcome string

const (
	// OutcomeLaunched — guard истинен, upstream успешны, job запущен.
	OutcomeLaunched JobOutcome = "LAUNCHED"

	// OutcomeSkippedGuardFalse — guard ложен для флагов этого run.
	OutcomeSkippedGuardFalse JobOutcome = "SKIPPED_GUARD_FALSE"

	// OutcomeSkippedUpstreamFailed — upstream завершился неуспешно
	// (FAILED, CANCELLED или сам был пропущен).
	OutcomeSkippedUpstreamFailed JobOutcome = "SKIPPED_UPSTREAM_FAILED"

	// OutcomeSkippedRunCancelled — run отменён до запуска этого job.
	OutcomeSkippedRunCancelled JobOutcome = "SKIPPED_RUN_CANCELLED"

	// OutcomeFailed — запуск не состоялся: отсутствует объявленный секрет
	// или субстрат отклонил invoke.
	OutcomeFailed JobOutcome = "FAILED"
)

// IsSkip возвращает true, если job был пропущен (не запускался и не падал).
func (o JobOutcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedGuardFalse, OutcomeSkippedUpstreamFailed, OutcomeSkippedRunCancelled:
		return true
	default:
		return false
	}
}
