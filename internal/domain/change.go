package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent — событие о предложенном изменении кода.
//
// ChangeEvent приходит из внешней системы code review (webhook, API, CLI)
// и описывает одно предложенное изменение: идентификатор изменения
// (ветка/PR), базовую и головную ревизии и набор изменённых файлов.
//
// После получения ChangeEvent неизменяем.
type ChangeEvent struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// ChangeID — идентификатор изменения (например, "pr-142" или имя ветки).
	// Не уникален: повторные push в ту же ветку порождают новые события
	// с тем же ChangeID.
	ChangeID string `json:"change_id"`

	// BaseRef — базовая ревизия, относительно которой считается diff.
	BaseRef string `json:"base_ref"`

	// HeadRef — головная ревизия изменения.
	HeadRef string `json:"head_ref"`

	// Files — набор изменённых файлов.
	// Может быть пустым (событие без известного diff) — тогда orchestrator
	// запрашивает список через diff-сервис.
	Files []string `json:"files,omitempty"`

	// ForceAll — принудительно считать все флаги классификации истинными.
	// Используется scheduler'ом для плановых полных прогонов.
	ForceAll bool `json:"force_all,omitempty"`

	// ReceivedAt — время получения события.
	ReceivedAt time.Time `json:"received_at"`
}

// ClassificationFlags — результат классификации изменения.
//
// Отображение имени флага в булево значение (например,
// SOURCE_CHANGED → true). Вычисляется один раз на Run и после этого
// неизменяемо.
type ClassificationFlags map[string]bool

// IsSet возвращает значение флага. Неизвестный флаг считается false.
func (f ClassificationFlags) IsSet(name string) bool {
	return f[name]
}

// Any возвращает true, если хотя бы один флаг истинен.
func (f ClassificationFlags) Any() bool {
	for _, v := range f {
		if v {
			return true
		}
	}
	return false
}

// Names возвращает отсортированный список имён флагов.
// Используется для детерминированного логирования и сериализации.
func (f ClassificationFlags) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrueNames возвращает отсортированный список истинных флагов.
func (f ClassificationFlags) TrueNames() []string {
	names := make([]string, 0, len(f))
	for name, v := range f {
		if v {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
