// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go        — Handler с DI (хранилища, publisher, gating-таблица)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects (request/response)
//   - change_handler.go — приём событий об изменениях
//   - run_handler.go    — чтение и отмена runs
//
// API — тонкий слой над очередью и БД: приём события и отмена run
// публикуются в RabbitMQ (состоянием владеет orchestrator), чтение
// идёт из зеркала в Postgres.
package api
