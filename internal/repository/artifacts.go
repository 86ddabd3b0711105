// artifacts.go — репозиторий реестра артефактов (таблица file_artifacts).
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
)

// artifactColumns — список столбцов file_artifacts для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const artifactColumns = `id, filename, original_filename, content_type, size,
	bucket, storage_key, checksum, uploaded_by, uploaded_at,
	tags, attributes, deleted, created_at, updated_at`

// ArtifactRepository — интерфейс доступа к метаданным артефактов.
// Soft-deleted записи исключены из всех read-путей, кроме явного
// audit-запроса GetAnyByID.
type ArtifactRepository interface {
	// Insert регистрирует артефакт. Повтор с тем же id — no-op (идемпотентность
	// retry). Занятая другая пара (bucket, storage_key) — ErrConflict.
	Insert(ctx context.Context, a *model.FileArtifact) error
	// GetByID возвращает live-запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileArtifact, error)
	// GetAnyByID — audit-запрос: возвращает запись включая soft-deleted.
	GetAnyByID(ctx context.Context, id string) (*model.FileArtifact, error)
	// GetByLocation возвращает запись по (bucket, storage_key) независимо
	// от флага deleted. Используется reconciler'ом для поиска orphan'ов.
	GetByLocation(ctx context.Context, bucket, key string) (*model.FileArtifact, error)
	// ListByUploader возвращает live-записи загрузившего, новые первыми.
	ListByUploader(ctx context.Context, uploadedBy string) ([]*model.FileArtifact, error)
	// SearchByTags возвращает live-записи с любым из указанных тегов, новые первыми.
	SearchByTags(ctx context.Context, tags []string) ([]*model.FileArtifact, error)
	// FindByContentType возвращает live-записи с точным совпадением MIME-типа.
	FindByContentType(ctx context.Context, contentType string) ([]*model.FileArtifact, error)
	// FindByAttribute возвращает live-записи с точным совпадением пары
	// key/value в атрибутах.
	FindByAttribute(ctx context.Context, key, value string) ([]*model.FileArtifact, error)
	// SoftDelete выставляет deleted = TRUE. Идемпотентен: повтор для уже
	// удалённой записи — no-op. Несуществующий id — ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
}

// artifactRepo — реализация ArtifactRepository через pgx.
type artifactRepo struct {
	db DBTX
}

// NewArtifactRepository создаёт репозиторий артефактов.
func NewArtifactRepository(db DBTX) ArtifactRepository {
	return &artifactRepo{db: db}
}

func (r *artifactRepo) Insert(ctx context.Context, a *model.FileArtifact) error {
	query := `
		INSERT INTO file_artifacts (id, filename, original_filename, content_type, size,
			bucket, storage_key, checksum, uploaded_by, uploaded_at, tags, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	attrs := a.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	_, err := r.db.Exec(ctx, query,
		a.ID, a.Filename, a.OriginalFilename, a.ContentType, a.Size,
		a.Bucket, a.StorageKey, a.Checksum, a.UploadedBy, a.UploadedAt,
		a.Tags, attrs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пара (bucket, storage_key) уже занята", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации артефакта: %w", err)
	}
	return nil
}

func (r *artifactRepo) GetByID(ctx context.Context, id string) (*model.FileArtifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_artifacts WHERE id = $1 AND NOT deleted`, artifactColumns)
	return r.queryOne(ctx, query, id)
}

func (r *artifactRepo) GetAnyByID(ctx context.Context, id string) (*model.FileArtifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_artifacts WHERE id = $1`, artifactColumns)
	return r.queryOne(ctx, query, id)
}

func (r *artifactRepo) GetByLocation(ctx context.Context, bucket, key string) (*model.FileArtifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_artifacts WHERE bucket = $1 AND storage_key = $2`, artifactColumns)
	return r.queryOne(ctx, query, bucket, key)
}

func (r *artifactRepo) ListByUploader(ctx context.Context, uploadedBy string) ([]*model.FileArtifact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_artifacts
		WHERE uploaded_by = $1 AND NOT deleted
		ORDER BY uploaded_at DESC`, artifactColumns)
	return r.queryMany(ctx, query, uploadedBy)
}

// SearchByTags ищет live-записи, содержащие хотя бы один из тегов (оператор &&).
func (r *artifactRepo) SearchByTags(ctx context.Context, tags []string) ([]*model.FileArtifact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_artifacts
		WHERE tags && $1 AND NOT deleted
		ORDER BY uploaded_at DESC`, artifactColumns)
	return r.queryMany(ctx, query, tags)
}

func (r *artifactRepo) FindByContentType(ctx context.Context, contentType string) ([]*model.FileArtifact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_artifacts
		WHERE content_type = $1 AND NOT deleted
		ORDER BY uploaded_at DESC`, artifactColumns)
	return r.queryMany(ctx, query, contentType)
}

// FindByAttribute ищет live-записи по точному совпадению пары key/value
// в JSONB-атрибутах (оператор @>).
func (r *artifactRepo) FindByAttribute(ctx context.Context, key, value string) ([]*model.FileArtifact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_artifacts
		WHERE attributes @> jsonb_build_object($1::text, $2::text) AND NOT deleted
		ORDER BY uploaded_at DESC`, artifactColumns)
	return r.queryMany(ctx, query, key, value)
}

func (r *artifactRepo) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE file_artifacts
		SET deleted = TRUE, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления артефакта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryOne выполняет запрос одной записи артефакта.
func (r *artifactRepo) queryOne(ctx context.Context, query string, args ...any) (*model.FileArtifact, error) {
	a := &model.FileArtifact{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Filename, &a.OriginalFilename, &a.ContentType, &a.Size,
		&a.Bucket, &a.StorageKey, &a.Checksum, &a.UploadedBy, &a.UploadedAt,
		&a.Tags, &a.Attributes, &a.Deleted, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения артефакта: %w", err)
	}
	return a, nil
}

// queryMany выполняет запрос списка записей артефактов.
func (r *artifactRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.FileArtifact, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска артефактов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileArtifact
	for rows.Next() {
		a := &model.FileArtifact{}
		if err := rows.Scan(
			&a.ID, &a.Filename, &a.OriginalFilename, &a.ContentType, &a.Size,
			&a.Bucket, &a.StorageKey, &a.Checksum, &a.UploadedBy, &a.UploadedAt,
			&a.Tags, &a.Attributes, &a.Deleted, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования артефакта: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
