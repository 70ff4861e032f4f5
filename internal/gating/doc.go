// Package gating содержит статическую конфигурацию оркестратора:
// правила классификации изменений и определения JobSpec с guard-предикатами,
// зависимостями и секретами.
//
// Gating-таблица — декларативные данные. Она загружается из YAML один раз
// на время жизни процесса и валидируется до того, как её увидит первый run.
// Горячей перезагрузки нет: изменение таблицы требует рестарта.
package gating
