package gating

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений расписаний.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate выполняет полную статическую валидацию gating-таблицы.
//
// Проверяет:
//   - правила флагов: непустые имена, уникальность, наличие паттернов
//   - JobSpec: непустые имена и ref, уникальность имён
//   - guards: все упомянутые флаги объявлены
//   - needs: ссылки на существующие jobs, нет self-dependency, нет циклов
//   - секреты: непустые имена
//   - расписания: валидные cron-выражения
//
// Валидация выполняется один раз при загрузке, до первого run.
func (t *Table) Validate() error {
	flagNames, err := t.validateFlags()
	if err != nil {
		return err
	}

	if len(t.Jobs) == 0 {
		return ErrNoJobs
	}

	jobNames := make(map[string]bool, len(t.Jobs))
	for i := range t.Jobs {
		job := &t.Jobs[i]

		if job.Name == "" {
			return NewValidationError("", "name", "job has empty name", ErrEmptyJobName)
		}
		if jobNames[job.Name] {
			return NewValidationError(job.Name, "name",
				fmt.Sprintf("duplicate job name: %s", job.Name), ErrDuplicateJobName)
		}
		jobNames[job.Name] = true

		if job.Ref == "" {
			return NewValidationError(job.Name, "uses", "job has empty ref", ErrEmptyJobRef)
		}

		if job.Guard != nil {
			for _, ref := range job.Guard.Refs() {
				if !flagNames[ref] {
					return NewValidationError(job.Name, "if",
						fmt.Sprintf("unknown flag: %s", ref), ErrUnknownFlag)
				}
			}
		}

		for _, secret := range job.Secrets {
			if secret == "" {
				return NewValidationError(job.Name, "secrets",
					"empty secret name", ErrEmptySecretName)
			}
		}

		for _, dep := range job.Needs {
			if dep == job.Name {
				return NewValidationError(job.Name, "needs",
					"job depends on itself", ErrSelfDependency)
			}
		}
	}

	// Валидность needs-ссылок отдельным проходом: upstream может быть
	// объявлен позже зависимого job.
	for i := range t.Jobs {
		job := &t.Jobs[i]
		for _, dep := range job.Needs {
			if !jobNames[dep] {
				return NewValidationError(job.Name, "needs",
					fmt.Sprintf("depends on unknown job: %s", dep), ErrUnknownUpstream)
			}
		}
	}

	if err := t.validateAcyclic(); err != nil {
		return err
	}

	return t.validateSchedules()
}

// validateFlags проверяет правила классификации и возвращает множество имён.
func (t *Table) validateFlags() (map[string]bool, error) {
	names := make(map[string]bool, len(t.Flags))
	for i := range t.Flags {
		rule := &t.Flags[i]

		if rule.Name == "" {
			return nil, NewValidationError("", "name", "flag rule has empty name", ErrEmptyFlagName)
		}
		if names[rule.Name] {
			return nil, NewValidationError(rule.Name, "name",
				fmt.Sprintf("duplicate flag name: %s", rule.Name), ErrDuplicateFlagName)
		}
		names[rule.Name] = true

		if len(rule.Paths) == 0 {
			return nil, NewValidationError(rule.Name, "paths",
				"flag rule has no path patterns", ErrEmptyFlagPaths)
		}
	}
	return names, nil
}

// validateAcyclic проверяет отсутствие циклов в needs-зависимостях.
// Обход в глубину с раскраской: white → gray → black.
func (t *Table) validateAcyclic() error {
	const (
		white = 0 // не посещён
		gray  = 1 // в текущем пути обхода
		black = 2 // обработан
	)

	color := make(map[string]int, len(t.Jobs))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return NewValidationError(name, "needs",
				fmt.Sprintf("dependency cycle through %s", name), ErrCyclicDependency)
		case black:
			return nil
		}

		color[name] = gray
		job := t.Job(name)
		for _, dep := range job.Needs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for i := range t.Jobs {
		if err := visit(t.Jobs[i].Name); err != nil {
			return err
		}
	}
	return nil
}

// validateSchedules проверяет расписания плановых прогонов.
func (t *Table) validateSchedules() error {
	seen := make(map[string]bool, len(t.Schedules))
	for i := range t.Schedules {
		sched := &t.Schedules[i]

		if sched.Name == "" {
			return NewValidationError("", "name", "schedule has empty name", ErrInvalidSchedule)
		}
		if seen[sched.Name] {
			return NewValidationError(sched.Name, "name",
				fmt.Sprintf("duplicate schedule name: %s", sched.Name), ErrInvalidSchedule)
		}
		seen[sched.Name] = true

		if _, err := cronParser.Parse(sched.Cron); err != nil {
			return NewValidationError(sched.Name, "cron",
				fmt.Sprintf("invalid cron expression %q: %v", sched.Cron, err), ErrInvalidSchedule)
		}
	}
	return nil
}
