// Package runner — граница вызова внешних job graphs.
//
// Оркестратор не исполняет тела jobs сам: он публикует запросы запуска
// внешнему исполняющему субстрату и отслеживает терминальные статусы.
// Интерфейс Runner (invoke/status/cancel/watch) изолирует остальную
// систему от транспорта; MQRunner — реализация поверх RabbitMQ.
package runner
