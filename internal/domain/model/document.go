// document.go — DocumentVersion: версионированный документ бизнес-сущности.
package model

import (
	"encoding/json"
	"time"
)

// DocumentVersion — одна версия документа, привязанного к subject.
// Для заданного SubjectID номера версий строго возрастают с 1 без
// пропусков; активной может быть не более одной версии одновременно.
// Payload и Version после создания записи неизменяемы — обновление
// всегда создаёт новую версию и деактивирует предыдущую.
type DocumentVersion struct {
	// ID — UUID записи версии
	ID string
	// SubjectID — идентификатор бизнес-сущности, которой принадлежит документ
	SubjectID string
	// Version — номер версии (положительное целое, начиная с 1)
	Version int
	// Payload — опаковый schemaless-блоб. Хранилище не предполагает схему:
	// контракт сериализации — ответственность вызывающего кода.
	Payload json.RawMessage
	// CreatedBy — идентификатор создателя версии
	CreatedBy string
	// Tags — произвольные теги версии
	Tags []string
	// Active — флаг актуальной версии. softDelete сбрасывает флаг
	// без создания новой версии.
	Active bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления записи
	UpdatedAt time.Time
}
