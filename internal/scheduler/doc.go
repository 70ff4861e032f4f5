// Package scheduler реализует плановые полные прогоны.
//
// Расписания объявляются в gating-таблице (секция schedules): имя,
// cron-выражение и ревизия. На каждое срабатывание публикуется
// синтетическое событие change.pushed с ForceAll=true, и orchestrator
// обрабатывает его как обычное изменение, но без классификации —
// все флаги истинны, запускается полный набор jobs.
//
// Структура:
//   - scheduler.go — цикл тиков и публикация событий
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
package scheduler
