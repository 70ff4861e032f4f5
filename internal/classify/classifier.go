package classify

import (
	"path"
	"strings"

	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
)

// Classifier вычисляет флаги классификации по набору изменённых путей.
//
// Правила — статическая конфигурация из gating-таблицы. Classify —
// чистая функция множества путей: порядок путей не влияет на результат,
// одинаковые входы всегда дают одинаковые флаги.
type Classifier struct {
	rules []gating.FlagRule
}

// New создаёт Classifier по правилам gating-таблицы.
// Таблица уже провалидирована при загрузке.
func New(table *gating.Table) *Classifier {
	return &Classifier{rules: table.Flags}
}

// Classify возвращает флаги для набора изменённых путей.
//
// Флаг истинен, если хотя бы один путь соответствует хотя бы одному
// паттерну его правила. Путь, не подошедший ни под одно правило,
// просто не влияет ни на один флаг — изменение, трогающее только
// попутные файлы (например, CHANGELOG.md), даёт все флаги false.
//
// Пустой набор путей — не ошибка: все флаги false.
func (c *Classifier) Classify(paths []string) domain.ClassificationFlags {
	flags := make(domain.ClassificationFlags, len(c.rules))
	for i := range c.rules {
		flags[c.rules[i].Name] = false
	}

	for _, p := range paths {
		p = normalize(p)
		if p == "" {
			continue
		}
		for i := range c.rules {
			rule := &c.rules[i]
			if flags[rule.Name] {
				continue // флаг уже установлен
			}
			if matchesAny(p, rule.Paths) {
				flags[rule.Name] = true
			}
		}
	}

	return flags
}

// AllTrue возвращает флаги, где все объявленные флаги истинны.
// Используется для плановых полных прогонов (ChangeEvent.ForceAll).
func (c *Classifier) AllTrue() domain.ClassificationFlags {
	flags := make(domain.ClassificationFlags, len(c.rules))
	for i := range c.rules {
		flags[c.rules[i].Name] = true
	}
	return flags
}

// FlagNames возвращает имена всех флагов в порядке объявления правил.
func (c *Classifier) FlagNames() []string {
	names := make([]string, len(c.rules))
	for i := range c.rules {
		names[i] = c.rules[i].Name
	}
	return names
}

// matchesAny проверяет путь против списка паттернов правила.
func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if matches(p, pattern) {
			return true
		}
	}
	return false
}

// matches сопоставляет один путь с одним паттерном.
//
// Поддерживаются три формы:
//   - "dir/**"   — любой файл под каталогом dir (включая вложенные)
//   - "a/*.md"   — glob в пределах сегментов (семантика path.Match)
//   - "go.mod"   — точное совпадение
func matches(p, pattern string) bool {
	pattern = normalize(pattern)

	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == dir || strings.HasPrefix(p, dir+"/")
	}

	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}

	return p == pattern
}

// normalize приводит путь к каноническому виду:
// прямые слэши, без ведущих "./" и "/".
func normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
