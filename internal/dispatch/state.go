package dispatch

import (
	"sync"

	"github.com/shaiso/Gatekeeper/internal/domain"
)

// jobSlot — результат одного JobSpec и сигнал его готовности.
type jobSlot struct {
	result *domain.JobResult

	// done закрывается, когда result окончателен.
	// Зависимые jobs ждут именно этот канал.
	done chan struct{}
}

// dispatchState — разделяемое состояние одного dispatch.
type dispatchState struct {
	names []string

	mu    sync.Mutex
	slots map[string]*jobSlot
}

func newDispatchState(names []string) *dispatchState {
	slots := make(map[string]*jobSlot, len(names))
	for _, name := range names {
		slots[name] = &jobSlot{done: make(chan struct{})}
	}
	return &dispatchState{names: names, slots: slots}
}

// order возвращает имена JobSpec в порядке объявления в таблице.
func (s *dispatchState) order() []string {
	return s.names
}

// slot возвращает слот JobSpec по имени.
func (s *dispatchState) slot(name string) *jobSlot {
	return s.slots[name]
}

// finish фиксирует результат JobSpec и будит зависимые jobs.
// Повторный вызов для того же имени — ошибка программиста, паникуем.
func (s *dispatchState) finish(name string, result *domain.JobResult) {
	s.mu.Lock()
	slot := s.slots[name]
	if slot.result != nil {
		s.mu.Unlock()
		panic("dispatch: duplicate finish for job " + name)
	}
	slot.result = result
	s.mu.Unlock()

	close(slot.done)
}

// result возвращает зафиксированный результат JobSpec (nil, если ещё нет).
func (s *dispatchState) result(name string) *domain.JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slots[name]
	if slot == nil {
		return nil
	}
	return slot.result
}
