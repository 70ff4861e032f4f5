// Package classify вычисляет флаги классификации изменения.
//
// Classifier сопоставляет изменённые пути с паттернами из gating-таблицы
// и выдаёт набор именованных булевых флагов (SOURCE_CHANGED,
// TESTING_CHANGED, ...). Dispatcher использует флаги для gate-решений.
package classify
