// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - change.pushed  — поступило новое изменение (вход оркестратора)
//   - run.cancel     — запрос ручной отмены run
//   - job.invoke     — запуск внешнего job (выход к субстрату)
//   - job.cancel     — best-effort отмена внешнего job
//   - job.completed  — терминальный статус внешнего job (вход от субстрата)
//
// Exchanges:
//   - gatekeeper.changes — входящие события изменений
//   - gatekeeper.runs    — управление runs
//   - gatekeeper.jobs    — обмен с внешним исполняющим субстратом
package mq
