package gating

import "errors"

// Ошибки валидации gating-таблицы.
var (
	// ErrNoJobs — таблица не содержит ни одного JobSpec.
	ErrNoJobs = errors.New("gating table has no jobs")

	// ErrEmptyJobName — JobSpec без имени.
	ErrEmptyJobName = errors.New("job has empty name")

	// ErrDuplicateJobName — имя JobSpec встречается дважды.
	ErrDuplicateJobName = errors.New("duplicate job name")

	// ErrEmptyJobRef — JobSpec без ссылки на внешний job graph.
	ErrEmptyJobRef = errors.New("job has empty ref")

	// ErrEmptyFlagName — правило классификации без имени флага.
	ErrEmptyFlagName = errors.New("flag rule has empty name")

	// ErrDuplicateFlagName — имя флага встречается дважды.
	ErrDuplicateFlagName = errors.New("duplicate flag name")

	// ErrEmptyFlagPaths — правило классификации без единого паттерна.
	ErrEmptyFlagPaths = errors.New("flag rule has no path patterns")

	// ErrUnknownFlag — guard ссылается на необъявленный флаг.
	ErrUnknownFlag = errors.New("guard references unknown flag")

	// ErrUnknownUpstream — needs ссылается на несуществующий JobSpec.
	ErrUnknownUpstream = errors.New("job depends on unknown job")

	// ErrSelfDependency — JobSpec зависит сам от себя.
	ErrSelfDependency = errors.New("job depends on itself")

	// ErrCyclicDependency — цикл в зависимостях JobSpec.
	ErrCyclicDependency = errors.New("cyclic dependency between jobs")

	// ErrInvalidGuard — guard задан некорректно (ноль или больше одного варианта).
	ErrInvalidGuard = errors.New("invalid guard")

	// ErrEmptySecretName — пустое имя секрета в объявлении JobSpec.
	ErrEmptySecretName = errors.New("job declares empty secret name")

	// ErrInvalidSchedule — некорректное расписание планового прогона.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// ValidationError — ошибка валидации с привязкой к элементу таблицы.
type ValidationError struct {
	// Element — имя job или флага, к которому относится ошибка.
	Element string

	// Field — поле элемента.
	Field string

	// Message — описание проблемы.
	Message string

	// Err — базовая sentinel-ошибка.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Element == "" {
		return e.Message
	}
	return e.Element + ": " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт ValidationError.
func NewValidationError(element, field, message string, err error) *ValidationError {
	return &ValidationError{
		Element: element,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
