package runner

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/secrets"
)

// InvokeRequest — параметры запуска внешнего job.
//
// JobID (launch ticket) выдаётся Dispatcher'ом, а не субстратом:
// оркестратор должен уметь ссылаться на запуск до того, как субстрат
// его подтвердил.
type InvokeRequest struct {
	// JobID — launch ticket запуска.
	JobID uuid.UUID

	// RunID — родительский run.
	RunID uuid.UUID

	// Ref — ссылка на внешний reusable job graph.
	Ref string

	// Params — статические параметры вызова.
	Params map[string]any

	// Secrets — секреты, объявленные в JobSpec. Пустая карта
	// означает: секреты не передаются.
	Secrets map[string]secrets.Value
}

// Handle — ссылка на запущенный внешний job.
type Handle struct {
	JobID uuid.UUID
	RunID uuid.UUID
	Ref   string
}

// Result — терминальный результат внешнего job.
type Result struct {
	Status domain.JobStatus
	Error  string
}

// Runner — граница вызова внешних reusable job graphs.
//
// Тела jobs (тестовые сьюты, публикация пакетов, проверка ссылок) —
// внешние коллабораторы; оркестратор только решает, что вызвать,
// и записывает результат. Абстракция позволяет подставить фейковый
// Runner в тестах, не поднимая реальные пайплайны.
type Runner interface {
	// Invoke запускает внешний job. Ошибка означает, что запуск
	// не состоялся (job считается FAILED, зависимые — skipped).
	Invoke(ctx context.Context, req InvokeRequest) (Handle, error)

	// Status возвращает текущий известный статус job.
	Status(ctx context.Context, h Handle) (domain.JobStatus, error)

	// Cancel запрашивает best-effort отмену job. Субстрат может уже
	// пройти точку отмены; ошибка не фатальна для вызывающего.
	Cancel(ctx context.Context, h Handle) error

	// Watch возвращает канал, в который будет доставлен терминальный
	// Result job (ровно один). Неблокирующее ожидание: канал закрывается
	// после доставки; отмена ctx прекращает ожидание.
	Watch(ctx context.Context, h Handle) (<-chan Result, error)
}
