// Пакет service — бизнес-логика хранилища артефактов.
// artifacts.go — FileArtifactService: оркестратор двух независимых backend'ов
// (объектное хранилище + реестр метаданных) как best-effort saga.
//
// Порядок шагов фиксирован, потому что он определяет возможные режимы отказа:
//   - upload: сначала байты объекта, затем метаданные;
//   - delete: сначала удаление объекта, затем soft delete метаданных.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/repository"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/blobstore"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/checksum"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/keynamer"
)

// Prometheus-метрики операций с артефактами.
var (
	artifactOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "as_artifact_operations_total",
		Help: "Количество операций с артефактами по типу и результату.",
	}, []string{"operation", "status"})

	orphanedUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_orphaned_uploads_total",
		Help: "Количество загрузок, завершившихся orphan-объектом (метаданные не записаны).",
	})

	inconsistenciesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_backend_inconsistencies_total",
		Help: "Количество обнаруженных расхождений метаданных и объектного хранилища.",
	})
)

// UploadParams — параметры загрузки артефакта.
type UploadParams struct {
	// Reader — поток содержимого. Non-seekable источники буферизуются.
	Reader io.Reader
	// Filename — логическое имя файла
	Filename string
	// ContentType — MIME-тип (пустой — application/octet-stream)
	ContentType string
	// UploadedBy — идентификатор загрузившего
	UploadedBy string
	// Bucket — целевой bucket (пустой — bucket по умолчанию)
	Bucket string
	// SubjectID — опциональная привязка к бизнес-сущности
	// (конвенция атрибута subject_id, без новых инвариантов)
	SubjectID string
	// Metadata — произвольные key/value атрибуты
	Metadata map[string]string
	// Tags — произвольные теги
	Tags []string
}

// FileArtifactService — оркестратор операций над бинарными артефактами.
// Вызывающий код не работает с ObjectStore и репозиторием напрямую.
type FileArtifactService struct {
	store         blobstore.ObjectStore
	repo          repository.ArtifactRepository
	cache         *MetadataCache
	defaultBucket string
	presignTTL    time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewFileArtifactService создаёт сервис артефактов.
// cache может быть nil — тогда кэширование метаданных отключено.
func NewFileArtifactService(
	store blobstore.ObjectStore,
	repo repository.ArtifactRepository,
	cache *MetadataCache,
	defaultBucket string,
	presignTTL time.Duration,
	logger *slog.Logger,
) *FileArtifactService {
	if presignTTL <= 0 {
		presignTTL = blobstore.DefaultPresignTTL
	}
	return &FileArtifactService{
		store:         store,
		repo:          repo,
		cache:         cache,
		defaultBucket: defaultBucket,
		presignTTL:    presignTTL,
		logger:        logger.With(slog.String("component", "artifact_service")),
		now:           time.Now,
	}
}

// Upload загружает артефакт.
//
// Поток:
//  1. Валидация параметров
//  2. Генерация ключа (KeyNamer) и вычисление SHA-256 с восстановлением позиции
//  3. Идемпотентное создание bucket'а
//  4. Запись байт в объектное хранилище с заголовками
//  5. Запись метаданных в реестр
//
// Если шаг 5 не удался после успешного шага 4 (в том числе из-за отмены
// контекста) — объект стал orphan, возвращается *PartialUploadError
// с парой (bucket, key). Объект при этом не удаляется.
func (s *FileArtifactService) Upload(ctx context.Context, params UploadParams) (*model.FileArtifact, error) {
	// 1. Валидация
	if params.Filename == "" {
		return nil, s.uploadFail(fmt.Errorf("%w: пустое имя файла", ErrInvalidArgument))
	}
	if params.UploadedBy == "" {
		return nil, s.uploadFail(fmt.Errorf("%w: не указан загрузивший", ErrInvalidArgument))
	}
	if params.Reader == nil {
		return nil, s.uploadFail(fmt.Errorf("%w: отсутствует поток содержимого", ErrInvalidArgument))
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	bucket := params.Bucket
	if bucket == "" {
		bucket = s.defaultBucket
	}

	// 2. Ключ, размер и checksum. Checksum требует seekable-потока:
	// позиция восстанавливается, чтобы тот же поток ушёл в хранилище.
	uploadedAt := s.now().UTC()
	key := keynamer.Key(params.Filename, uploadedAt)

	rs, err := checksum.Seekable(params.Reader)
	if err != nil {
		return nil, s.uploadFail(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	size, err := streamSize(rs)
	if err != nil {
		return nil, s.uploadFail(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	if size <= 0 {
		return nil, s.uploadFail(fmt.Errorf("%w: пустое содержимое", ErrInvalidArgument))
	}
	digest, err := checksum.SumSeeker(rs)
	if err != nil {
		return nil, s.uploadFail(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}

	// 3. Идемпотентное создание bucket'а
	if err := s.store.EnsureBucket(ctx, bucket); err != nil {
		return nil, s.uploadFail(translateBlobErr(err))
	}

	// 4. Запись байт с дополненными заголовками
	headers := map[string]string{
		blobstore.HeaderUploadedBy:       params.UploadedBy,
		blobstore.HeaderOriginalFilename: params.Filename,
		blobstore.HeaderChecksum:         digest,
		blobstore.HeaderUploadDate:       uploadedAt.Format(time.RFC3339),
	}
	if err := s.store.Put(ctx, bucket, key, rs, size, contentType, headers); err != nil {
		return nil, s.uploadFail(translateBlobErr(err))
	}

	// 5. Запись метаданных. С этого момента любой отказ (включая отмену
	// контекста) обязан всплыть как PartialUploadError — объект уже записан.
	attrs := make(map[string]string, len(params.Metadata)+1)
	for k, v := range params.Metadata {
		attrs[k] = v
	}
	if params.SubjectID != "" {
		attrs[model.AttrSubjectID] = params.SubjectID
	}

	artifact := &model.FileArtifact{
		ID:               uuid.New().String(),
		Filename:         params.Filename,
		OriginalFilename: params.Filename,
		ContentType:      contentType,
		Size:             size,
		Bucket:           bucket,
		StorageKey:       key,
		Checksum:         digest,
		UploadedBy:       params.UploadedBy,
		UploadedAt:       uploadedAt,
		Tags:             params.Tags,
		Attributes:       attrs,
	}

	if err := s.repo.Insert(ctx, artifact); err != nil {
		orphanedUploadsTotal.Inc()
		artifactOpsTotal.WithLabelValues("upload", "orphan").Inc()
		s.logger.Error("Метаданные не записаны после сохранения объекта — orphan",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, &PartialUploadError{
			Bucket:     bucket,
			Key:        key,
			ArtifactID: artifact.ID,
			Err:        err,
		}
	}

	if s.cache != nil {
		s.cache.Set(artifact.ID, artifact)
	}
	artifactOpsTotal.WithLabelValues("upload", "success").Inc()

	s.logger.Info("Артефакт загружен",
		slog.String("artifact_id", artifact.ID),
		slog.String("filename", params.Filename),
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int64("size", size),
		slog.String("checksum", digest),
		slog.String("uploaded_by", params.UploadedBy),
	)

	return artifact, nil
}

// Download возвращает метаданные и поток содержимого артефакта.
// Отсутствующая или soft-deleted запись — ErrNotFound.
// Live-метаданные при физически отсутствующем объекте — ErrInconsistent:
// backend'ы разошлись, и это отличимо от обычного "не найдено".
func (s *FileArtifactService) Download(ctx context.Context, id string) (*model.FileArtifact, io.ReadCloser, error) {
	artifact, err := s.getLive(ctx, id)
	if err != nil {
		artifactOpsTotal.WithLabelValues("download", "error").Inc()
		return nil, nil, err
	}

	rc, err := s.store.Get(ctx, artifact.Bucket, artifact.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			inconsistenciesTotal.Inc()
			artifactOpsTotal.WithLabelValues("download", "inconsistent").Inc()
			s.logger.Error("Live-метаданные ссылаются на отсутствующий объект",
				slog.String("artifact_id", id),
				slog.String("bucket", artifact.Bucket),
				slog.String("key", artifact.StorageKey),
			)
			return nil, nil, fmt.Errorf("%w: объект %s/%s отсутствует",
				ErrInconsistent, artifact.Bucket, artifact.StorageKey)
		}
		artifactOpsTotal.WithLabelValues("download", "error").Inc()
		return nil, nil, translateBlobErr(err)
	}

	artifactOpsTotal.WithLabelValues("download", "success").Inc()
	return artifact, rc, nil
}

// Delete удаляет артефакт: сначала байты объекта (идемпотентно), затем
// soft delete метаданных. Возвращает false без ошибки, если live-записи нет.
// При отказе удаления объекта метаданные остаются live — retry возможен.
func (s *FileArtifactService) Delete(ctx context.Context, id string) (bool, error) {
	artifact, err := s.repo.GetAnyByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		artifactOpsTotal.WithLabelValues("delete", "error").Inc()
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if artifact.Deleted {
		// Повторное удаление — no-op
		return false, nil
	}

	// Сначала объект: при отказе метаданные не трогаем,
	// иначе live-запись стала бы недостижимой.
	if err := s.store.Delete(ctx, artifact.Bucket, artifact.StorageKey); err != nil {
		artifactOpsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Не удалось удалить объект, метаданные оставлены live",
			slog.String("artifact_id", id),
			slog.String("bucket", artifact.Bucket),
			slog.String("key", artifact.StorageKey),
			slog.String("error", err.Error()),
		)
		return false, translateBlobErr(err)
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		artifactOpsTotal.WithLabelValues("delete", "error").Inc()
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}
	artifactOpsTotal.WithLabelValues("delete", "success").Inc()

	s.logger.Info("Артефакт удалён",
		slog.String("artifact_id", id),
		slog.String("bucket", artifact.Bucket),
		slog.String("key", artifact.StorageKey),
	)
	return true, nil
}

// PresignedURL выдаёт time-boxed ссылку на чтение артефакта.
// ttl <= 0 — срок действия по умолчанию.
// Ссылка best-effort: объект может быть удалён до её истечения.
func (s *FileArtifactService) PresignedURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	artifact, err := s.getLive(ctx, id)
	if err != nil {
		artifactOpsTotal.WithLabelValues("presign", "error").Inc()
		return "", err
	}
	if ttl <= 0 {
		ttl = s.presignTTL
	}

	link, err := s.store.Presign(ctx, artifact.Bucket, artifact.StorageKey, ttl)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			inconsistenciesTotal.Inc()
			artifactOpsTotal.WithLabelValues("presign", "inconsistent").Inc()
			return "", fmt.Errorf("%w: объект %s/%s отсутствует",
				ErrInconsistent, artifact.Bucket, artifact.StorageKey)
		}
		artifactOpsTotal.WithLabelValues("presign", "error").Inc()
		return "", translateBlobErr(err)
	}

	artifactOpsTotal.WithLabelValues("presign", "success").Inc()
	return link, nil
}

// Verify перечитывает объект и сравнивает дайджест с записанным в метаданных.
// Несовпадение — ErrChecksumMismatch (повреждение данных).
func (s *FileArtifactService) Verify(ctx context.Context, id string) error {
	artifact, rc, err := s.Download(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	digest, err := checksum.Sum(rc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if digest != artifact.Checksum {
		s.logger.Error("Контрольная сумма объекта не совпадает с метаданными",
			slog.String("artifact_id", id),
			slog.String("expected", artifact.Checksum),
			slog.String("actual", digest),
		)
		return fmt.Errorf("%w: записано %s, вычислено %s", ErrChecksumMismatch, artifact.Checksum, digest)
	}
	return nil
}

// SearchByTags возвращает live-артефакты с любым из указанных тегов,
// новые первыми. Чисто метаданные — объектное хранилище не участвует.
func (s *FileArtifactService) SearchByTags(ctx context.Context, tags []string) ([]*model.FileArtifact, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: пустой список тегов", ErrInvalidArgument)
	}
	result, err := s.repo.SearchByTags(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return result, nil
}

// ListByUploader возвращает live-артефакты загрузившего, новые первыми.
func (s *FileArtifactService) ListByUploader(ctx context.Context, uploadedBy string) ([]*model.FileArtifact, error) {
	if uploadedBy == "" {
		return nil, fmt.Errorf("%w: не указан загрузивший", ErrInvalidArgument)
	}
	result, err := s.repo.ListByUploader(ctx, uploadedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return result, nil
}

// ListBySubject возвращает live-артефакты, привязанные к бизнес-сущности
// через атрибут subject_id.
func (s *FileArtifactService) ListBySubject(ctx context.Context, subjectID string) ([]*model.FileArtifact, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: пустой subject id", ErrInvalidArgument)
	}
	result, err := s.repo.FindByAttribute(ctx, model.AttrSubjectID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return result, nil
}

// GetMetadata возвращает live-метаданные артефакта (с кэшем).
func (s *FileArtifactService) GetMetadata(ctx context.Context, id string) (*model.FileArtifact, error) {
	return s.getLive(ctx, id)
}

// getLive возвращает live-запись по id: сначала кэш, затем реестр.
func (s *FileArtifactService) getLive(ctx context.Context, id string) (*model.FileArtifact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: пустой id", ErrInvalidArgument)
	}
	if s.cache != nil {
		if artifact, ok := s.cache.Get(id); ok {
			return artifact, nil
		}
	}

	artifact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: артефакт %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Set(id, artifact)
	}
	return artifact, nil
}

// uploadFail инкрементирует метрику неуспешной загрузки и возвращает ошибку.
func (s *FileArtifactService) uploadFail(err error) error {
	artifactOpsTotal.WithLabelValues("upload", "error").Inc()
	return err
}

// streamSize определяет размер потока от текущей позиции до конца
// с восстановлением позиции чтения.
func streamSize(rs io.ReadSeeker) (int64, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return 0, err
	}
	return end - pos, nil
}

// translateBlobErr переводит ошибки объектного хранилища в сервисную таксономию.
func translateBlobErr(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, blobstore.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
