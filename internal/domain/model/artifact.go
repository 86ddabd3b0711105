// Пакет model — доменные модели хранилища артефактов.
// artifact.go — FileArtifact: бинарный объект + его метаданные.
package model

import "time"

// FileArtifact — запись артефакта в реестре file_artifacts.
// Источник истины о существовании артефакта — эта запись;
// байты в объектном хранилище без live-записи считаются orphan.
type FileArtifact struct {
	// ID — UUID артефакта (генерируется при записи метаданных)
	ID string
	// Filename — логическое имя файла
	Filename string
	// OriginalFilename — оригинальное имя файла от загрузившего
	OriginalFilename string
	// ContentType — MIME-тип содержимого
	ContentType string
	// Size — размер содержимого в байтах (равен фактически сохранённому)
	Size int64
	// Bucket — имя bucket в объектном хранилище
	Bucket string
	// StorageKey — ключ объекта вида YYYY/MM/DD/name_<8hex>.ext.
	// Пара (Bucket, StorageKey) уникальна и неизменяема после назначения.
	StorageKey string
	// Checksum — SHA-256 hex-дайджест содержимого
	Checksum string
	// UploadedBy — идентификатор загрузившего
	UploadedBy string
	// UploadedAt — время загрузки (UTC)
	UploadedAt time.Time
	// Tags — произвольные теги артефакта
	Tags []string
	// Attributes — произвольные key/value атрибуты (JSONB)
	Attributes map[string]string
	// Deleted — флаг soft delete. Запись метаданных никогда не удаляется
	// физически — физически удаляются только байты объекта.
	Deleted bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления записи
	UpdatedAt time.Time
}

// AttrSubjectID — ключ атрибута, связывающего артефакт с бизнес-сущностью.
// Привязка к subject реализована как конвенция метаданных,
// без отдельных инвариантов.
const AttrSubjectID = "subject_id"
