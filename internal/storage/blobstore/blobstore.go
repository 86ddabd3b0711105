// Пакет blobstore — адаптер объектного (bucket-ориентированного) хранилища
// бинарных данных. Единый контракт put/get/delete/stat/presign поверх
// конкретного backend'а; идемпотентное создание bucket'ов.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Ошибки адаптера объектного хранилища.
var (
	// ErrNotFound — объект или bucket не существует.
	ErrNotFound = errors.New("объект не найден")
	// ErrUnavailable — backend недоступен (связность, права, диск).
	ErrUnavailable = errors.New("объектное хранилище недоступно")
	// ErrInvalidArgument — некорректные входные данные
	// (пустой ключ, несовпадение размера и т.п.).
	ErrInvalidArgument = errors.New("некорректные параметры объекта")
)

// Заголовки объекта, сохраняемые при загрузке артефактов.
const (
	HeaderUploadedBy       = "uploaded-by"
	HeaderOriginalFilename = "original-filename"
	HeaderChecksum         = "checksum"
	HeaderUploadDate       = "upload-date"
)

// ObjectInfo — сведения об объекте без передачи тела.
type ObjectInfo struct {
	// Bucket — имя bucket
	Bucket string
	// Key — ключ объекта
	Key string
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
	// Headers — заголовки, записанные при put
	Headers map[string]string
	// ModTime — время последней записи объекта
	ModTime time.Time
}

// ObjectStore — контракт объектного хранилища.
// Все операции принимают context для отмены и таймаутов.
type ObjectStore interface {
	// EnsureBucket идемпотентно создаёт bucket: существующий — не ошибка.
	EnsureBucket(ctx context.Context, bucket string) error
	// Put записывает весь поток под ключом. size — ожидаемый размер;
	// несовпадение с фактически прочитанным — ErrInvalidArgument.
	// После успешного возврата байты durably читаемы под (bucket, key).
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, headers map[string]string) error
	// Get возвращает поток полного объекта. Отсутствие — ErrNotFound.
	// Вызывающий код обязан закрыть ReadCloser.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Delete удаляет объект. Удаление идемпотентно:
	// отсутствующий объект — no-op, не ошибка.
	Delete(ctx context.Context, bucket, key string) error
	// Stat возвращает сведения об объекте без передачи тела.
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	// Presign возвращает time-boxed ссылку на чтение объекта без credentials.
	// Отсутствие ключа на момент выдачи — ErrNotFound (best-effort:
	// объект может быть удалён до истечения ссылки).
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
