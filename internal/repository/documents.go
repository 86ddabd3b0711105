// documents.go — репозиторий версионированных документов (таблица document_versions).
// Append-only: payload и version после вставки не изменяются,
// обновляется только флаг active.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
)

// documentColumns — список столбцов document_versions для SELECT-запросов.
const documentColumns = `id, subject_id, version, payload, created_by,
	tags, active, created_at, updated_at`

// DocumentVersionRepository — интерфейс доступа к цепочкам версий документов.
type DocumentVersionRepository interface {
	// Insert вставляет новую запись версии.
	// Занятый номер версии или вторая активная запись subject'а — ErrConflict.
	Insert(ctx context.Context, v *model.DocumentVersion) error
	// ReplaceActive в одной транзакции деактивирует текущую активную запись
	// subject'а (если есть) и вставляет новую активную версию.
	ReplaceActive(ctx context.Context, v *model.DocumentVersion) error
	// LatestActive возвращает активную запись subject'а или ErrNotFound.
	LatestActive(ctx context.Context, subjectID string) (*model.DocumentVersion, error)
	// MaxVersion возвращает максимальный номер версии subject'а (0 — версий нет).
	MaxVersion(ctx context.Context, subjectID string) (int, error)
	// History возвращает все версии subject'а (активные и нет) по убыванию версии.
	History(ctx context.Context, subjectID string) ([]*model.DocumentVersion, error)
	// SearchByTags возвращает активные записи с любым из тегов, новые первыми.
	SearchByTags(ctx context.Context, tags []string) ([]*model.DocumentVersion, error)
	// SoftDelete сбрасывает active без создания новой версии. Идемпотентен:
	// повтор для неактивной записи — no-op. Несуществующий id — ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
}

// documentRepo — реализация DocumentVersionRepository через pgx.
// runner используется для транзакции deactivate-then-append.
type documentRepo struct {
	db     DBTX
	runner *TxRunner
}

// NewDocumentVersionRepository создаёт репозиторий версий документов.
// runner может быть nil — тогда ReplaceActive недоступен (read-only сценарии).
func NewDocumentVersionRepository(db DBTX, runner *TxRunner) DocumentVersionRepository {
	return &documentRepo{db: db, runner: runner}
}

func (r *documentRepo) Insert(ctx context.Context, v *model.DocumentVersion) error {
	return insertVersion(ctx, r.db, v)
}

// insertVersion — общая вставка версии, используется и в транзакции ReplaceActive.
func insertVersion(ctx context.Context, db DBTX, v *model.DocumentVersion) error {
	query := `
		INSERT INTO document_versions (id, subject_id, version, payload, created_by, tags, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := db.QueryRow(ctx, query,
		v.ID, v.SubjectID, v.Version, v.Payload, v.CreatedBy, v.Tags, v.Active,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: версия %d subject %s уже существует или активна другая версия",
				ErrConflict, v.Version, v.SubjectID)
		}
		return fmt.Errorf("ошибка вставки версии документа: %w", err)
	}
	return nil
}

// ReplaceActive деактивирует текущую активную версию subject'а и вставляет
// новую в одной транзакции. Порядок фиксирован: сначала деактивация, затем
// вставка — иначе сработает частичный уникальный индекс single_active.
func (r *documentRepo) ReplaceActive(ctx context.Context, v *model.DocumentVersion) error {
	if r.runner == nil {
		return fmt.Errorf("ReplaceActive: репозиторий создан без TxRunner")
	}

	return r.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		deactivate := `
			UPDATE document_versions
			SET active = FALSE, updated_at = now()
			WHERE subject_id = $1 AND active`

		if _, err := tx.Exec(ctx, deactivate, v.SubjectID); err != nil {
			return fmt.Errorf("ошибка деактивации текущей версии: %w", err)
		}
		return insertVersion(ctx, tx, v)
	})
}

func (r *documentRepo) LatestActive(ctx context.Context, subjectID string) (*model.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_versions WHERE subject_id = $1 AND active`, documentColumns)

	v := &model.DocumentVersion{}
	err := r.db.QueryRow(ctx, query, subjectID).Scan(
		&v.ID, &v.SubjectID, &v.Version, &v.Payload, &v.CreatedBy,
		&v.Tags, &v.Active, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения активной версии: %w", err)
	}
	return v, nil
}

func (r *documentRepo) MaxVersion(ctx context.Context, subjectID string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE subject_id = $1`

	var max int
	if err := r.db.QueryRow(ctx, query, subjectID).Scan(&max); err != nil {
		return 0, fmt.Errorf("ошибка определения последней версии: %w", err)
	}
	return max, nil
}

func (r *documentRepo) History(ctx context.Context, subjectID string) ([]*model.DocumentVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM document_versions
		WHERE subject_id = $1
		ORDER BY version DESC`, documentColumns)
	return r.queryMany(ctx, query, subjectID)
}

func (r *documentRepo) SearchByTags(ctx context.Context, tags []string) ([]*model.DocumentVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM document_versions
		WHERE tags && $1 AND active
		ORDER BY created_at DESC`, documentColumns)
	return r.queryMany(ctx, query, tags)
}

func (r *documentRepo) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE document_versions
		SET active = FALSE, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка soft delete версии документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryMany выполняет запрос списка версий документов.
func (r *documentRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.DocumentVersion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска версий документов: %w", err)
	}
	defer rows.Close()

	var result []*model.DocumentVersion
	for rows.Next() {
		v := &model.DocumentVersion{}
		if err := rows.Scan(
			&v.ID, &v.SubjectID, &v.Version, &v.Payload, &v.CreatedBy,
			&v.Tags, &v.Active, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования версии документа: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
