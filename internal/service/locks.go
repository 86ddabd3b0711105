// locks.go — взаимное исключение с ключом по subject id.
// Последовательность deactivate-then-append должна быть сериализована
// per-subject; операции над разными subject'ами полностью независимы,
// поэтому глобальная блокировка не подходит.
package service

import "sync"

// subjectLocks — карта мьютексов с подсчётом ссылок.
// Запись удаляется из карты, когда последний владелец отпускает блокировку,
// поэтому карта не растёт с количеством когда-либо виденных subject'ов.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

// subjectLock — мьютекс одного subject'а с количеством ожидающих.
type subjectLock struct {
	mu   sync.Mutex
	refs int
}

// newSubjectLocks создаёт пустую карту блокировок.
func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*subjectLock)}
}

// Lock захватывает блокировку subject'а и возвращает функцию освобождения.
// Всегда вызывать defer unlock().
func (l *subjectLocks) Lock(subjectID string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[subjectID]
	if !ok {
		entry = &subjectLock{}
		l.locks[subjectID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, subjectID)
		}
		l.mu.Unlock()
	}
}
