// errors.go — типизированные ошибки бизнес-логики хранилища артефактов.
// Сервисный слой — единственный, кто переводит низкоуровневые ошибки
// backend'ов в saga-state ошибки (PartialUploadError, ErrInconsistent).
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — по id/ключу нет live-записи.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrBackendUnavailable — транзиентная недоступность backend'а;
	// безопасно повторять только идемпотентные операции.
	ErrBackendUnavailable = errors.New("backend недоступен")
	// ErrChecksumMismatch — вычисленный дайджест не совпадает с записанным;
	// признак повреждения данных.
	ErrChecksumMismatch = errors.New("несовпадение контрольной суммы")
	// ErrVersionConflict — обнаружена конкурентная модификация цепочки
	// версий subject'а.
	ErrVersionConflict = errors.New("конфликт версий")
	// ErrInconsistent — live-метаданные ссылаются на физически отсутствующий
	// объект: backend'ы разошлись.
	ErrInconsistent = errors.New("расхождение метаданных и объектного хранилища")
	// ErrInvalidArgument — некорректные входные данные.
	ErrInvalidArgument = errors.New("некорректные входные данные")
)

// PartialUploadError — байты объекта записаны, но запись метаданных не удалась.
// Объект стал orphan; ошибка несёт (bucket, key) для retry записи метаданных
// или удаления объекта вызывающим кодом либо фоновым reconciler'ом.
// Сервис сам объект не удаляет — байты могут быть ещё нужны.
type PartialUploadError struct {
	// Bucket — bucket orphan-объекта
	Bucket string
	// Key — ключ orphan-объекта
	Key string
	// ArtifactID — id, под которым метаданные должны были быть записаны
	ArtifactID string
	// Err — исходная ошибка записи метаданных
	Err error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("объект %s/%s записан, но метаданные не сохранены (orphan): %v",
		e.Bucket, e.Key, e.Err)
}

func (e *PartialUploadError) Unwrap() error {
	return e.Err
}
