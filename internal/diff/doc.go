// Package diff получает список изменённых файлов между двумя ревизиями.
//
// Событие о новой ревизии не всегда несёт список файлов: при приёме
// через API или poll fallback список запрашивается у code host через
// Service. CachedService добавляет LRU-кэш поверх любой реализации:
// пара ревизий неизменяема, поэтому результат можно кэшировать вечно.
package diff
