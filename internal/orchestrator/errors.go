package orchestrator

import "errors"

var (
	// ErrRunNotFound — run с таким ID не зарегистрирован.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotActive — run уже в терминальном статусе.
	ErrRunNotActive = errors.New("run is not active")

	// ErrNoFiles — событие не несёт списка файлов, а diff-сервис не настроен.
	ErrNoFiles = errors.New("event carries no files and no diff service is configured")
)
