package secrets

import (
	"errors"
	"fmt"
	"os"
)

// ErrMissing — объявленный секрет отсутствует в окружении.
var ErrMissing = errors.New("secret not found")

// Value — непрозрачное значение секрета.
//
// String() возвращает маскированное представление, чтобы секрет
// не утёк через логи и %v/%s форматирование. Реальное значение
// доступно только через Reveal().
type Value struct {
	value string
}

// Reveal возвращает реальное значение секрета.
func (v Value) Reveal() string { return v.value }

// String возвращает маскированное представление.
func (v Value) String() string { return "***" }

// GoString не даёт %#v раскрыть значение.
func (v Value) GoString() string { return "secrets.Value{***}" }

// Store — хранилище именованных секретов.
//
// Реализации: FromEnv (переменные окружения процесса), Static (тесты).
type Store interface {
	// Get возвращает секрет по имени.
	// Возвращает ErrMissing, если секрет не задан.
	Get(name string) (Value, error)
}

// Resolve возвращает значения для списка объявленных имён.
//
// Пустой список имён даёт пустой результат: job, не объявивший секретов,
// не получает ни одного. Отсутствие любого из объявленных секретов —
// ошибка (fail closed): job нельзя запускать с неполным набором.
func Resolve(store Store, names []string) (map[string]Value, error) {
	resolved := make(map[string]Value, len(names))
	for _, name := range names {
		v, err := store.Get(name)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}

// envStore читает секреты из окружения процесса.
type envStore struct {
	prefix string
}

// FromEnv создаёт Store над переменными окружения.
// prefix добавляется к имени секрета при поиске (обычно пустой).
func FromEnv(prefix string) Store {
	return &envStore{prefix: prefix}
}

func (s *envStore) Get(name string) (Value, error) {
	v, ok := os.LookupEnv(s.prefix + name)
	if !ok || v == "" {
		return Value{}, fmt.Errorf("%w: %s", ErrMissing, name)
	}
	return Value{value: v}, nil
}

// Static — фиксированный набор секретов. Используется в тестах.
type Static map[string]string

func (s Static) Get(name string) (Value, error) {
	v, ok := s[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrMissing, name)
	}
	return Value{value: v}, nil
}
