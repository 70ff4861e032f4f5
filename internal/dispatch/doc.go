// Package dispatch решает, какие jobs запускать для конкретного run.
//
// Dispatcher обходит JobSpec'и gating-таблицы: вычисляет guard над
// флагами классификации, ждёт завершения upstream-зависимостей,
// разрешает объявленные секреты и запускает job через Runner. Каждому
// JobSpec присваивается ровно один исход: запущен, пропущен с причиной
// или не смог запуститься.
//
// Dispatch одного run представлен типом Execution: его можно отменить
// в любой момент (вытеснение более новым run), при этом ещё не
// запущенные jobs получают SKIPPED_RUN_CANCELLED, а уже запущенные —
// best-effort запрос отмены у субстрата.
package dispatch
