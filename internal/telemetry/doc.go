// Package telemetry — наблюдаемость Gatekeeper.
//
// Состав:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus-счётчики runs и jobs
//
// Каждый сервис настраивает логгер через SetupLogger и отдаёт
// метрики на своём /metrics endpoint.
//
// Значения секретов в лог не попадают никогда: secrets.Value
// печатается как "***", а telemetry не принимает raw-строки секретов.
package telemetry
