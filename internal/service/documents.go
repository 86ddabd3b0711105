// documents.go — VersionedDocumentStore: версионируемые JSON-документы
// с привязкой к бизнес-сущности (subject).
//
// Инварианты:
//   - версии subject'а строго возрастают с 1 без пропусков;
//   - у subject'а не более одной активной версии одновременно;
//   - история append-only: записанная версия никогда не изменяется.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/repository"
)

var documentOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "as_document_operations_total",
	Help: "Количество операций с версионируемыми документами по типу и результату.",
}, []string{"operation", "status"})

// VersionedDocumentStore — операции над версионируемыми документами.
// Последовательность версий каждого subject'а сериализуется
// per-subject мьютексом; уникальные индексы БД служат последним
// рубежом против конкурентных записей из других процессов.
type VersionedDocumentStore struct {
	repo   repository.DocumentVersionRepository
	locks  *subjectLocks
	logger *slog.Logger
	now    func() time.Time
}

// NewVersionedDocumentStore создаёт хранилище версионируемых документов.
func NewVersionedDocumentStore(repo repository.DocumentVersionRepository, logger *slog.Logger) *VersionedDocumentStore {
	return &VersionedDocumentStore{
		repo:   repo,
		locks:  newSubjectLocks(),
		logger: logger.With(slog.String("component", "document_store")),
		now:    time.Now,
	}
}

// Append вставляет новую активную версию документа, не деактивируя
// предыдущие — применим только когда активной версии ещё нет (первая
// запись subject'а либо запись после Deactivate). Версия —
// max(существующих) + 1, для первой записи — 1. Если активная версия
// уже есть, вставка упирается в частичный уникальный индекс и
// возвращается ErrVersionConflict; для переключения активной версии
// предназначен Update.
func (s *VersionedDocumentStore) Append(ctx context.Context, subjectID string, payload json.RawMessage, createdBy string, tags []string) (*model.DocumentVersion, error) {
	if err := validateDocumentArgs(subjectID, payload); err != nil {
		documentOpsTotal.WithLabelValues("append", "error").Inc()
		return nil, err
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	next, err := s.nextVersion(ctx, subjectID)
	if err != nil {
		documentOpsTotal.WithLabelValues("append", "error").Inc()
		return nil, err
	}

	doc := s.newVersion(subjectID, next, payload, createdBy, tags)
	doc.Active = true

	if err := s.repo.Insert(ctx, doc); err != nil {
		return nil, s.translateInsertErr("append", subjectID, next, err)
	}

	documentOpsTotal.WithLabelValues("append", "success").Inc()
	s.logger.Info("Версия документа добавлена",
		slog.String("subject_id", subjectID),
		slog.Int("version", next),
		slog.String("document_id", doc.ID),
	)
	return doc, nil
}

// Update записывает новую активную версию документа subject'а:
// текущая активная версия (если есть) деактивируется, новая версия
// max+1 вставляется активной. Обе записи выполняются в одной транзакции,
// поэтому внешний наблюдатель не видит subject без активной версии
// в середине переключения.
func (s *VersionedDocumentStore) Update(ctx context.Context, subjectID string, payload json.RawMessage, createdBy string, tags []string) (*model.DocumentVersion, error) {
	if err := validateDocumentArgs(subjectID, payload); err != nil {
		documentOpsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	next, err := s.nextVersion(ctx, subjectID)
	if err != nil {
		documentOpsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	doc := s.newVersion(subjectID, next, payload, createdBy, tags)
	doc.Active = true

	if err := s.repo.ReplaceActive(ctx, doc); err != nil {
		return nil, s.translateInsertErr("update", subjectID, next, err)
	}

	documentOpsTotal.WithLabelValues("update", "success").Inc()
	s.logger.Info("Активная версия документа обновлена",
		slog.String("subject_id", subjectID),
		slog.Int("version", next),
		slog.String("document_id", doc.ID),
	)
	return doc, nil
}

// Latest возвращает активную версию документа subject'а.
// Отсутствие активной версии — не ошибка: возвращается (nil, nil).
func (s *VersionedDocumentStore) Latest(ctx context.Context, subjectID string) (*model.DocumentVersion, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: пустой subject id", ErrInvalidArgument)
	}
	doc, err := s.repo.LatestActive(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return doc, nil
}

// History возвращает все версии документа subject'а, новые первыми,
// включая неактивные.
func (s *VersionedDocumentStore) History(ctx context.Context, subjectID string) ([]*model.DocumentVersion, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: пустой subject id", ErrInvalidArgument)
	}
	docs, err := s.repo.History(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return docs, nil
}

// SearchByTags возвращает активные версии с любым из указанных тегов,
// новые первыми.
func (s *VersionedDocumentStore) SearchByTags(ctx context.Context, tags []string) ([]*model.DocumentVersion, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: пустой список тегов", ErrInvalidArgument)
	}
	docs, err := s.repo.SearchByTags(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return docs, nil
}

// Deactivate снимает флаг активности с конкретной версии документа.
// Сама запись версии сохраняется в истории.
func (s *VersionedDocumentStore) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: пустой id", ErrInvalidArgument)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: версия документа %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	documentOpsTotal.WithLabelValues("deactivate", "success").Inc()
	return nil
}

// nextVersion вычисляет номер следующей версии subject'а.
func (s *VersionedDocumentStore) nextVersion(ctx context.Context, subjectID string) (int, error) {
	maxVersion, err := s.repo.MaxVersion(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return maxVersion + 1, nil
}

func (s *VersionedDocumentStore) newVersion(subjectID string, version int, payload json.RawMessage, createdBy string, tags []string) *model.DocumentVersion {
	return &model.DocumentVersion{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Version:   version,
		Payload:   payload,
		CreatedBy: createdBy,
		Tags:      tags,
		CreatedAt: s.now().UTC(),
	}
}

func (s *VersionedDocumentStore) translateInsertErr(op, subjectID string, version int, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		documentOpsTotal.WithLabelValues(op, "conflict").Inc()
		s.logger.Warn("Конфликт версий документа",
			slog.String("subject_id", subjectID),
			slog.Int("version", version),
		)
		return fmt.Errorf("%w: subject %s версия %d", ErrVersionConflict, subjectID, version)
	}
	documentOpsTotal.WithLabelValues(op, "error").Inc()
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func validateDocumentArgs(subjectID string, payload json.RawMessage) error {
	if subjectID == "" {
		return fmt.Errorf("%w: пустой subject id", ErrInvalidArgument)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: пустое содержимое документа", ErrInvalidArgument)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: содержимое документа не является корректным JSON", ErrInvalidArgument)
	}
	return nil
}
