// Package orchestrator связывает компоненты системы в единый цикл:
// событие об изменении → регистрация run → вытеснение предыдущего run
// того же изменения → классификация diff → условный dispatch jobs →
// финализация статуса run.
//
// Orchestrator получает события из RabbitMQ (event-driven) и дополнительно
// периодически проверяет registry на осиротевшие PENDING runs (polling
// fallback): потерянная горутина dispatch не должна оставлять run
// подвешенным навсегда.
package orchestrator
