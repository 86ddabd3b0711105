// diskstore.go — дисковая реализация ObjectStore.
// Bucket — директория под корнем хранилища, объект — файл по ключу.
// Запись атомарна: temp файл → fsync → rename. Рядом с объектом лежит
// сопутствующий *.attr.json с content-type и заголовками put.
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// attrSuffix — суффикс сопутствующего файла метаданных объекта.
const attrSuffix = ".attr.json"

// objectAttrs — содержимое *.attr.json объекта.
type objectAttrs struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Headers     map[string]string `json:"headers,omitempty"`
	PutAt       time.Time         `json:"put_at"`
}

// DiskStore — объектное хранилище на локальной файловой системе.
type DiskStore struct {
	// root — корневая директория хранилища
	root string
	// presigner — генератор подписанных ссылок (nil — presign недоступен)
	presigner *Presigner
}

// NewDiskStore создаёт дисковое хранилище. Создаёт корневую директорию,
// если она не существует.
func NewDiskStore(root string, presigner *Presigner) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("%w: не удалось создать корневую директорию %s: %v", ErrUnavailable, root, err)
	}
	return &DiskStore{root: root, presigner: presigner}, nil
}

// EnsureBucket идемпотентно создаёт директорию bucket'а.
func (d *DiskStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(bucket); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(d.root, bucket), 0o750); err != nil {
		return fmt.Errorf("%w: не удалось создать bucket %s: %v", ErrUnavailable, bucket, err)
	}
	return nil
}

// Put записывает объект: temp файл → проверка размера → fsync → atomic rename,
// затем атрибуты в *.attr.json. При ошибке temp файл удаляется.
func (d *DiskStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := d.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: отрицательный размер %d", ErrInvalidArgument, size)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("%w: не удалось создать директорию ключа: %v", ErrUnavailable, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: ошибка создания временного файла: %v", ErrUnavailable, err)
	}

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка записи данных: %v", ErrUnavailable, err)
	}
	if written != size {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: записано %d байт, заявлено %d", ErrInvalidArgument, written, size)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка fsync: %v", ErrUnavailable, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка закрытия файла: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка атомарного переименования: %v", ErrUnavailable, err)
	}

	attrs := objectAttrs{
		ContentType: contentType,
		Size:        written,
		Headers:     headers,
		PutAt:       time.Now().UTC(),
	}
	if err := writeAttrs(fullPath+attrSuffix, &attrs); err != nil {
		return err
	}
	return nil
}

// Get открывает объект для чтения.
func (d *DiskStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: ошибка открытия объекта %s/%s: %v", ErrUnavailable, bucket, key, err)
	}
	return f, nil
}

// Delete удаляет объект и его attr.json. Отсутствующий объект — no-op.
func (d *DiskStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := d.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: ошибка удаления объекта %s/%s: %v", ErrUnavailable, bucket, key, err)
	}
	if err := os.Remove(fullPath + attrSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: ошибка удаления attr.json %s/%s: %v", ErrUnavailable, bucket, key, err)
	}
	return nil
}

// Stat возвращает сведения об объекте без чтения тела.
func (d *DiskStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: ошибка stat объекта %s/%s: %v", ErrUnavailable, bucket, key, err)
	}

	info := &ObjectInfo{
		Bucket:  bucket,
		Key:     key,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}

	// attr.json — best effort: объект без атрибутов всё ещё читаем
	if attrs, err := readAttrs(fullPath + attrSuffix); err == nil {
		info.ContentType = attrs.ContentType
		info.Headers = attrs.Headers
	}
	return info, nil
}

// Presign выдаёт подписанную time-boxed ссылку на чтение объекта.
// Существование ключа проверяется на момент выдачи (best-effort).
func (d *DiskStore) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if d.presigner == nil {
		return "", fmt.Errorf("%w: presigner не сконфигурирован", ErrUnavailable)
	}
	if _, err := d.Stat(ctx, bucket, key); err != nil {
		return "", err
	}
	return d.presigner.SignedURL(bucket, key, ttl)
}

// Walk обходит все объекты bucket'а и вызывает fn для каждого.
// Используется reconciler'ом для поиска orphan-объектов.
// Файлы метаданных (*.attr.json) и временные файлы пропускаются.
func (d *DiskStore) Walk(ctx context.Context, bucket string, fn func(info *ObjectInfo) error) error {
	if err := validateName(bucket); err != nil {
		return err
	}
	bucketDir := filepath.Join(d.root, bucket)

	return filepath.WalkDir(bucketDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // bucket ещё не создан — нечего обходить
			}
			return fmt.Errorf("%w: ошибка обхода %s: %v", ErrUnavailable, bucket, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() || strings.HasSuffix(path, attrSuffix) || strings.HasSuffix(path, ".tmp") {
			return nil
		}

		rel, relErr := filepath.Rel(bucketDir, path)
		if relErr != nil {
			return fmt.Errorf("%w: некорректный путь объекта %s: %v", ErrUnavailable, path, relErr)
		}
		key := filepath.ToSlash(rel)

		info, statErr := d.Stat(ctx, bucket, key)
		if statErr != nil {
			return statErr
		}
		return fn(info)
	})
}

// objectPath строит абсолютный путь объекта с защитой от path traversal.
func (d *DiskStore) objectPath(bucket, key string) (string, error) {
	if err := validateName(bucket); err != nil {
		return "", err
	}
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: недопустимый ключ %q", ErrInvalidArgument, key)
	}
	return filepath.Join(d.root, bucket, filepath.FromSlash(key)), nil
}

// validateName проверяет имя bucket'а: непустое, без разделителей пути.
func validateName(bucket string) error {
	if bucket == "" || strings.ContainsAny(bucket, "/\\") || strings.Contains(bucket, "..") {
		return fmt.Errorf("%w: недопустимое имя bucket %q", ErrInvalidArgument, bucket)
	}
	return nil
}

// writeAttrs атомарно записывает attr.json: temp → fsync → rename.
func writeAttrs(path string, attrs *objectAttrs) error {
	data, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: ошибка сериализации атрибутов: %v", ErrUnavailable, err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: ошибка создания временного файла атрибутов: %v", ErrUnavailable, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка записи атрибутов: %v", ErrUnavailable, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка fsync атрибутов: %v", ErrUnavailable, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка закрытия файла атрибутов: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка переименования файла атрибутов: %v", ErrUnavailable, err)
	}
	return nil
}

// readAttrs читает и десериализует attr.json объекта.
func readAttrs(path string) (*objectAttrs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var attrs objectAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, err
	}
	return &attrs, nil
}

// Проверка контракта на этапе компиляции.
var _ ObjectStore = (*DiskStore)(nil)
