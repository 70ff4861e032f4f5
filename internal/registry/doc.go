// Package registry — реестр runs, ключевое разделяемое состояние системы.
//
// Registry отслеживает все runs по ChangeID и сериализует обновления
// per-ключ, поддерживая инвариант: не более одного run в статусе
// PENDING/RUNNING на один ChangeID. Поступление нового run для ChangeID
// атомарно отменяет предыдущий активный.
//
// Registry авторитетен для статусов runs внутри системы; состояние
// внешних jobs у субстрата — eventually consistent.
package registry
