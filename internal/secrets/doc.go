// Package secrets управляет именованными секретами оркестратора.
//
// Секреты — непрозрачные значения (API-ключи и т.п.), поставляемые через
// окружение процесса. Они передаются только тем jobs, которые явно
// объявили их в gating-таблице, и никогда не попадают в логи:
// Value маскирует себя при форматировании.
package secrets
