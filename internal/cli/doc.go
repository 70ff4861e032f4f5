// Package cli реализует инструмент командной строки Gatekeeper.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Gatekeeper API.
// Работает через HTTP; единственное исключение — `table validate`,
// которая проверяет gating-таблицу локально, без сервера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Gatekeeper API. Инкапсулирует запросы, парсинг
// ответов (DataResponse, ListResponse, ErrorResponse) и обработку
// ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{ChangeID: "pr-42"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: gatekeeper run list --json | jq .
package cli
