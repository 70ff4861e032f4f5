package gating

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table — gating-таблица: правила классификации + определения JobSpec.
//
// Таблица — статическая конфигурация процесса. Загружается один раз
// через Load, валидируется через Validate и после этого не меняется.
type Table struct {
	// Version — версия формата таблицы (для обратной совместимости).
	Version string `yaml:"version,omitempty"`

	// Flags — правила классификации изменений.
	Flags []FlagRule `yaml:"flags"`

	// Jobs — определения JobSpec в порядке объявления.
	Jobs []JobSpec `yaml:"jobs"`

	// Schedules — плановые полные прогоны (все флаги принудительно true).
	Schedules []Schedule `yaml:"schedules,omitempty"`
}

// FlagRule — правило для одного флага классификации.
//
// Флаг истинен, если хотя бы один изменённый путь соответствует
// хотя бы одному паттерну правила.
type FlagRule struct {
	// Name — имя флага (например, SOURCE_CHANGED).
	Name string `yaml:"name" json:"name"`

	// Paths — паттерны путей. Поддерживаются:
	//   - точное совпадение:      "go.mod"
	//   - префикс по каталогу:    "src/**"
	//   - glob в пределах сегмента: "docs/*.md" (семантика path.Match)
	Paths []string `yaml:"paths" json:"paths"`
}

// JobSpec — именованная ссылка на внешний reusable job graph.
//
// Статическая конфигурация, не runtime-состояние. Guard, зависимости
// и секреты объявляются здесь и только здесь.
type JobSpec struct {
	// Name — уникальное имя JobSpec внутри таблицы.
	Name string `yaml:"name"`

	// Ref — ссылка на внешний job graph (например,
	// "ci/workflows/run-tests@v3"). Интерпретируется субстратом.
	Ref string `yaml:"uses"`

	// Guard — предикат над флагами. Nil означает безусловный запуск.
	Guard Predicate `yaml:"-"`

	// Needs — имена upstream JobSpec. Job запускается только после
	// успешного завершения всех upstream.
	Needs []string `yaml:"needs,omitempty"`

	// Secrets — имена секретов, которые нужно передать job.
	// Пустой список означает: секреты не передаются вообще.
	Secrets []string `yaml:"secrets,omitempty"`

	// Params — статические параметры вызова.
	Params map[string]any `yaml:"params,omitempty"`

	// BestEffort — неуспех этого job не делает run FAILED.
	BestEffort bool `yaml:"best_effort,omitempty"`
}

// GuardOrTrue возвращает guard или константу true, если guard не задан.
func (j *JobSpec) GuardOrTrue() Predicate {
	if j.Guard == nil {
		return True{}
	}
	return j.Guard
}

// Schedule — плановый полный прогон.
//
// По cron-расписанию scheduler создаёт синтетический ChangeEvent
// с ForceAll=true: классификация не выполняется, все флаги истинны.
type Schedule struct {
	// Name — имя расписания (используется как ChangeID синтетических событий).
	Name string `yaml:"name" json:"name"`

	// Cron — cron-выражение (минута час день месяц день-недели).
	Cron string `yaml:"cron" json:"cron"`

	// Ref — ревизия, для которой выполняется прогон (например, "main").
	Ref string `yaml:"ref" json:"ref"`
}

// jobSpecYAML — промежуточное представление JobSpec для разбора guard.
type jobSpecYAML struct {
	Name       string         `yaml:"name"`
	Ref        string         `yaml:"uses"`
	If         *guardYAML     `yaml:"if,omitempty"`
	Needs      []string       `yaml:"needs,omitempty"`
	Secrets    []string       `yaml:"secrets,omitempty"`
	Params     map[string]any `yaml:"params,omitempty"`
	BestEffort bool           `yaml:"best_effort,omitempty"`
}

// tableYAML — промежуточное представление таблицы.
type tableYAML struct {
	Version   string        `yaml:"version,omitempty"`
	Flags     []FlagRule    `yaml:"flags"`
	Jobs      []jobSpecYAML `yaml:"jobs"`
	Schedules []Schedule    `yaml:"schedules,omitempty"`
}

// Load читает и валидирует gating-таблицу из YAML-файла.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gating table: %w", err)
	}
	return Parse(data)
}

// Parse разбирает и валидирует gating-таблицу из YAML.
func Parse(data []byte) (*Table, error) {
	var raw tableYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse gating table: %w", err)
	}

	table := &Table{
		Version:   raw.Version,
		Flags:     raw.Flags,
		Schedules: raw.Schedules,
		Jobs:      make([]JobSpec, len(raw.Jobs)),
	}

	for i := range raw.Jobs {
		rj := &raw.Jobs[i]
		spec := JobSpec{
			Name:       rj.Name,
			Ref:        rj.Ref,
			Needs:      rj.Needs,
			Secrets:    rj.Secrets,
			Params:     rj.Params,
			BestEffort: rj.BestEffort,
		}
		if rj.If != nil {
			guard, err := rj.If.toPredicate()
			if err != nil {
				return nil, NewValidationError(rj.Name, "if", err.Error(), ErrInvalidGuard)
			}
			spec.Guard = guard
		}
		table.Jobs[i] = spec
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}

	return table, nil
}

// Job возвращает JobSpec по имени, nil если не найден.
func (t *Table) Job(name string) *JobSpec {
	for i := range t.Jobs {
		if t.Jobs[i].Name == name {
			return &t.Jobs[i]
		}
	}
	return nil
}

// FlagNames возвращает имена всех объявленных флагов в порядке объявления.
func (t *Table) FlagNames() []string {
	names := make([]string, len(t.Flags))
	for i := range t.Flags {
		names[i] = t.Flags[i].Name
	}
	return names
}
