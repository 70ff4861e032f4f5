package gating

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Gatekeeper/internal/domain"
)

// Predicate — guard-предикат над флагами классификации.
//
// Предикаты представлены типизированными вариантами (ссылка на флаг,
// конъюнкция, дизъюнкция, отрицание, константа true), а не произвольными
// выражениями. Это позволяет статически проверить gating-таблицу
// до того, как её увидит первый run.
type Predicate interface {
	// Eval вычисляет предикат над флагами.
	Eval(flags domain.ClassificationFlags) bool

	// Refs возвращает имена флагов, на которые ссылается предикат.
	Refs() []string

	// String возвращает каноническое текстовое представление.
	String() string
}

// FlagRef — ссылка на флаг классификации.
// Истинен, когда флаг установлен в true.
type FlagRef string

func (p FlagRef) Eval(flags domain.ClassificationFlags) bool {
	return flags.IsSet(string(p))
}

func (p FlagRef) Refs() []string { return []string{string(p)} }

func (p FlagRef) String() string { return string(p) }

// And — конъюнкция: истинна, когда все вложенные предикаты истинны.
// Пустая конъюнкция истинна.
type And []Predicate

func (p And) Eval(flags domain.ClassificationFlags) bool {
	for _, sub := range p {
		if !sub.Eval(flags) {
			return false
		}
	}
	return true
}

func (p And) Refs() []string { return collectRefs(p) }

func (p And) String() string { return joinPreds(p, " && ") }

// Or — дизъюнкция: истинна, когда хотя бы один вложенный предикат истинен.
// Пустая дизъюнкция ложна.
type Or []Predicate

func (p Or) Eval(flags domain.ClassificationFlags) bool {
	for _, sub := range p {
		if sub.Eval(flags) {
			return true
		}
	}
	return false
}

func (p Or) Refs() []string { return collectRefs(p) }

func (p Or) String() string { return joinPreds(p, " || ") }

// Not — отрицание вложенного предиката.
type Not struct {
	Sub Predicate
}

func (p Not) Eval(flags domain.ClassificationFlags) bool {
	return !p.Sub.Eval(flags)
}

func (p Not) Refs() []string { return p.Sub.Refs() }

func (p Not) String() string { return "!(" + p.Sub.String() + ")" }

// True — константа true. Используется для JobSpec без guard:
// отсутствие guard означает безусловный запуск.
type True struct{}

func (True) Eval(domain.ClassificationFlags) bool { return true }

func (True) Refs() []string { return nil }

func (True) String() string { return "true" }

// collectRefs собирает уникальные имена флагов из вложенных предикатов.
func collectRefs(preds []Predicate) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, p := range preds {
		for _, r := range p.Refs() {
			if !seen[r] {
				seen[r] = true
				refs = append(refs, r)
			}
		}
	}
	sort.Strings(refs)
	return refs
}

// joinPreds собирает текстовое представление составного предиката.
func joinPreds(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// guardYAML — YAML-представление guard-предиката.
//
// Ровно одно из полей должно быть задано:
//
//	if:
//	  flag: SOURCE_CHANGED
//	if:
//	  all: [{flag: A}, {flag: B}]
//	if:
//	  any: [{flag: A}, {not: {flag: B}}]
type guardYAML struct {
	Flag string      `yaml:"flag,omitempty"`
	All  []guardYAML `yaml:"all,omitempty"`
	Any  []guardYAML `yaml:"any,omitempty"`
	Not  *guardYAML  `yaml:"not,omitempty"`
}

// toPredicate конвертирует YAML-представление в типизированный Predicate.
func (g *guardYAML) toPredicate() (Predicate, error) {
	set := 0
	if g.Flag != "" {
		set++
	}
	if len(g.All) > 0 {
		set++
	}
	if len(g.Any) > 0 {
		set++
	}
	if g.Not != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of flag/all/any/not must be set", ErrInvalidGuard)
	}

	switch {
	case g.Flag != "":
		return FlagRef(g.Flag), nil

	case len(g.All) > 0:
		subs, err := toPredicates(g.All)
		if err != nil {
			return nil, err
		}
		return And(subs), nil

	case len(g.Any) > 0:
		subs, err := toPredicates(g.Any)
		if err != nil {
			return nil, err
		}
		return Or(subs), nil

	default:
		sub, err := g.Not.toPredicate()
		if err != nil {
			return nil, err
		}
		return Not{Sub: sub}, nil
	}
}

// toPredicates конвертирует список YAML-guard'ов.
func toPredicates(gs []guardYAML) ([]Predicate, error) {
	preds := make([]Predicate, len(gs))
	for i := range gs {
		p, err := gs[i].toPredicate()
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return preds, nil
}
