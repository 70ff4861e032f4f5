package domain

import (
	"time"

	"github.com/google/uuid"
)

// DispatchDecision — итог работы Dispatcher для одного run.
//
// Для каждого JobSpec из gating-таблицы фиксируется ровно один JobResult:
// запущен, пропущен (с причиной) или не смог запуститься. Decision
// становится терминальным, когда все запущенные jobs отчитались статусом.
type DispatchDecision struct {
	// RunID — run, для которого принято решение.
	RunID uuid.UUID `json:"run_id"`

	// Jobs — результаты по каждому JobSpec в порядке объявления
	// в gating-таблице.
	Jobs []*JobResult `json:"jobs"`

	// CreatedAt — время начала dispatch.
	CreatedAt time.Time `json:"created_at"`
}

// Launched возвращает результаты только для запущенных jobs.
func (d *DispatchDecision) Launched() []*JobResult {
	var out []*JobResult
	for _, j := range d.Jobs {
		if j.Outcome == OutcomeLaunched {
			out = append(out, j)
		}
	}
	return out
}

// Job возвращает результат для JobSpec по имени, nil если не найден.
func (d *DispatchDecision) Job(name string) *JobResult {
	for _, j := range d.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Succeeded возвращает true, если решение успешно в целом: ни один
// не-best-effort job не упал и не завершился неуспешно. Пропущенные
// jobs на итог не влияют; пустой набор запусков успешен вакуумно.
func (d *DispatchDecision) Succeeded() bool {
	for _, j := range d.Jobs {
		if j.BestEffort {
			continue
		}
		if j.Outcome == OutcomeFailed {
			return false
		}
		if j.Outcome == OutcomeLaunched && j.Status != JobStatusSucceeded {
			return false
		}
	}
	return true
}

// JobResult — результат обработки одного JobSpec.
type JobResult struct {
	// JobID — launch ticket: уникальный идентификатор запуска.
	// Выдаётся и для пропущенных jobs (для трассировки решения).
	JobID uuid.UUID `json:"job_id"`

	// RunID — родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Name — имя JobSpec из gating-таблицы.
	Name string `json:"name"`

	// Ref — ссылка на внешний reusable job graph.
	Ref string `json:"ref"`

	// Outcome — итог: запущен / пропущен / не запустился.
	Outcome JobOutcome `json:"outcome"`

	// Status — терминальный статус job у субстрата.
	// Заполняется только для Outcome == LAUNCHED.
	Status JobStatus `json:"status,omitempty"`

	// BestEffort — job с этим маркером не влияет на итоговый статус run.
	BestEffort bool `json:"best_effort,omitempty"`

	// Error — текст ошибки (секрет отсутствует, invoke отклонён,
	// job завершился с FAILED).
	Error string `json:"error,omitempty"`

	// LaunchedAt — время запуска. Nil для незапущенных.
	LaunchedAt *time.Time `json:"launched_at,omitempty"`

	// FinishedAt — время получения терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Succeeded возвращает true, если job был запущен и завершился успешно.
func (j *JobResult) Succeeded() bool {
	return j.Outcome == OutcomeLaunched && j.Status == JobStatusSucceeded
}
