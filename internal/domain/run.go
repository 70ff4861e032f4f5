package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одна попытка оркестрации для ChangeEvent.
//
// Run создаётся при получении ChangeEvent. Для одного ChangeID может
// существовать много runs, но не более одного в активном статусе
// (PENDING или RUNNING) — новый run вытесняет предыдущий.
//
// Переходы:
//   - CANCELLED, если run вытеснен более новым для того же ChangeID
//   - COMPLETED/FAILED, когда все запущенные jobs достигли терминального статуса
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Seq — монотонно возрастающий порядковый номер.
	// Выдаётся Run Registry; используется для упорядочивания runs
	// одного ChangeID (больший Seq — более новый run).
	Seq int64 `json:"seq"`

	// ChangeID — идентификатор изменения (не уникален среди runs).
	ChangeID string `json:"change_id"`

	// Event — событие, породившее run.
	Event ChangeEvent `json:"event"`

	// Status — текущий статус run.
	Status RunStatus `json:"status"`

	// Flags — результат классификации. Nil до классификации,
	// неизменяемо после.
	Flags ClassificationFlags `json:"flags,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала dispatch (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// IsActive возвращает true, если run в статусе PENDING или RUNNING.
func (r *Run) IsActive() bool {
	return r.Status == RunStatusPending || r.Status == RunStatusRunning
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *Run) MarkCompleted() {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}
