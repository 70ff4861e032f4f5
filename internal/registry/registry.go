package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
)

// Persister — опциональная write-through персистенция registry.
//
// Registry авторитетен для инварианта "не более одного активного run
// на ChangeID"; персистенция — best-effort зеркало для API/истории.
// Ошибки персистенции логируются и не влияют на решение registry.
type Persister interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
}

// Registry — реестр активных и завершённых runs.
//
// Единственное разделяемое изменяемое состояние системы. Обновления
// сериализуются per-ChangeID (ключевой мьютекс), что сохраняет инвариант
// "не более одного run в PENDING/RUNNING на ChangeID" при конкурентном
// поступлении событий для одного изменения.
type Registry struct {
	mu sync.RWMutex

	// runs — известные runs (runID → Run). При включённой персистенции
	// терминальные runs вытесняются: история обслуживается зеркалом.
	runs map[uuid.UUID]*domain.Run

	// byChange — runs по ChangeID в порядке возрастания Seq.
	byChange map[string][]*domain.Run

	// keys — per-ChangeID мьютексы. Не вытесняются: удаление мьютекса
	// конкурентно с Begin ломает сериализацию per-ChangeID, а множество
	// ключей ограничено числом различных ChangeID (ветки/PR).
	keys map[string]*sync.Mutex

	// seq — монотонный счётчик порядковых номеров runs.
	seq atomic.Int64

	persister Persister
	logger    *slog.Logger
}

// Option — опция конструктора Registry.
type Option func(*Registry)

// WithPersister включает write-through персистенцию.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// New создаёт пустой Registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		runs:     make(map[uuid.UUID]*domain.Run),
		byChange: make(map[string][]*domain.Run),
		keys:     make(map[string]*sync.Mutex),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// keyLock возвращает мьютекс для ChangeID, создавая при необходимости.
func (r *Registry) keyLock(changeID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.keys[changeID]
	if !ok {
		lock = &sync.Mutex{}
		r.keys[changeID] = lock
	}
	return lock
}

// Begin атомарно регистрирует новый run для события.
//
// Под ключевым мьютексом ChangeID:
//  1. все активные (PENDING/RUNNING) runs этого ChangeID переводятся
//     в CANCELLED и возвращаются вторым значением;
//  2. создаётся новый run в статусе PENDING с очередным Seq.
//
// Между шагами 1 и 2 никакой другой run для этого ChangeID появиться
// не может, поэтому инвариант "не более одного активного" держится
// и при конкурентных вызовах Begin.
func (r *Registry) Begin(ctx context.Context, event domain.ChangeEvent) (*domain.Run, []*domain.Run) {
	lock := r.keyLock(event.ChangeID)
	lock.Lock()
	defer lock.Unlock()

	cancelled := r.cancelActiveLocked(ctx, event.ChangeID)

	run := &domain.Run{
		ID:        uuid.New(),
		Seq:       r.seq.Add(1),
		ChangeID:  event.ChangeID,
		Event:     event,
		Status:    domain.RunStatusPending,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.byChange[event.ChangeID] = append(r.byChange[event.ChangeID], run)
	r.mu.Unlock()

	r.persist(ctx, run, false)

	return run, cancelled
}

// CancelActive переводит все активные runs для ChangeID в CANCELLED.
//
// Контракт Cancellation Manager'а: вызов без активных runs — no-op,
// не ошибка. Возвращает отменённые runs.
func (r *Registry) CancelActive(ctx context.Context, changeID string) []*domain.Run {
	lock := r.keyLock(changeID)
	lock.Lock()
	defer lock.Unlock()

	return r.cancelActiveLocked(ctx, changeID)
}

// cancelActiveLocked — тело CancelActive; вызывается под ключевым мьютексом.
func (r *Registry) cancelActiveLocked(ctx context.Context, changeID string) []*domain.Run {
	r.mu.Lock()
	var cancelled []*domain.Run
	for _, run := range r.byChange[changeID] {
		if run.IsActive() {
			run.MarkCancelled()
			cancelled = append(cancelled, run)
		}
	}
	for _, run := range cancelled {
		r.evictLocked(run)
	}
	r.mu.Unlock()

	for _, run := range cancelled {
		r.persist(ctx, run, true)
	}
	return cancelled
}

// Get возвращает run по ID, nil если не найден.
func (r *Registry) Get(runID uuid.UUID) *domain.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs[runID]
}

// Status возвращает текущий статус run.
// Для неизвестного run возвращает CANCELLED: dispatcher должен
// останавливать запуски, а не продолжать с осиротевшим run.
func (r *Registry) Status(runID uuid.UUID) domain.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return domain.RunStatusCancelled
	}
	return run.Status
}

// ActiveRun возвращает активный run для ChangeID, nil если такого нет.
func (r *Registry) ActiveRun(changeID string) *domain.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.byChange[changeID] {
		if run.IsActive() {
			return run
		}
	}
	return nil
}

// MarkRunning переводит run PENDING → RUNNING.
// Переход из терминального статуса игнорируется (run мог быть
// отменён конкурентным Begin).
func (r *Registry) MarkRunning(ctx context.Context, runID uuid.UUID) bool {
	return r.transition(ctx, runID, func(run *domain.Run) bool {
		if run.Status != domain.RunStatusPending {
			return false
		}
		run.MarkRunning()
		return true
	})
}

// MarkCompleted переводит run в COMPLETED.
func (r *Registry) MarkCompleted(ctx context.Context, runID uuid.UUID) bool {
	return r.transition(ctx, runID, func(run *domain.Run) bool {
		if run.IsFinished() {
			return false
		}
		run.MarkCompleted()
		return true
	})
}

// MarkFailed переводит run в FAILED с текстом ошибки.
func (r *Registry) MarkFailed(ctx context.Context, runID uuid.UUID, errMsg string) bool {
	return r.transition(ctx, runID, func(run *domain.Run) bool {
		if run.IsFinished() {
			return false
		}
		run.MarkFailed(errMsg)
		return true
	})
}

// SetFlags записывает результат классификации run.
// Флаги вычисляются один раз; повторная запись игнорируется.
func (r *Registry) SetFlags(ctx context.Context, runID uuid.UUID, flags domain.ClassificationFlags) {
	r.transition(ctx, runID, func(run *domain.Run) bool {
		if run.Flags != nil {
			return false
		}
		run.Flags = flags
		return true
	})
}

// transition применяет мутацию к run под ключевым мьютексом его ChangeID.
func (r *Registry) transition(ctx context.Context, runID uuid.UUID, mutate func(*domain.Run) bool) bool {
	run := r.Get(runID)
	if run == nil {
		return false
	}

	lock := r.keyLock(run.ChangeID)
	lock.Lock()

	r.mu.Lock()
	changed := mutate(run)
	if changed && run.Status.IsTerminal() {
		r.evictLocked(run)
	}
	r.mu.Unlock()

	lock.Unlock()

	if changed {
		r.persist(ctx, run, true)
	}
	return changed
}

// evictLocked вытесняет терминальный run из памяти. Вызывается под r.mu.
// Без персистенции вытеснения нет: иначе история run пропала бы совсем.
func (r *Registry) evictLocked(run *domain.Run) {
	if r.persister == nil {
		return
	}

	delete(r.runs, run.ID)

	rest := r.byChange[run.ChangeID][:0]
	for _, other := range r.byChange[run.ChangeID] {
		if other.ID != run.ID {
			rest = append(rest, other)
		}
	}
	if len(rest) == 0 {
		delete(r.byChange, run.ChangeID)
	} else {
		r.byChange[run.ChangeID] = rest
	}
}

// List возвращает runs для ChangeID в порядке возрастания Seq.
// Пустой changeID — все runs.
func (r *Registry) List(changeID string) []*domain.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Run
	if changeID != "" {
		out = append(out, r.byChange[changeID]...)
	} else {
		for _, run := range r.runs {
			out = append(out, run)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	}
	return out
}

// persist зеркалирует run в персистенцию. Best-effort:
// ошибка логируется и проглатывается.
func (r *Registry) persist(ctx context.Context, run *domain.Run, update bool) {
	if r.persister == nil {
		return
	}

	var err error
	if update {
		err = r.persister.UpdateRun(ctx, run)
	} else {
		err = r.persister.SaveRun(ctx, run)
	}
	if err != nil {
		r.logger.Warn("failed to persist run",
			"run_id", run.ID,
			"change_id", run.ChangeID,
			"error", err,
		)
	}
}
