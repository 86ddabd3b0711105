package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/blobstore"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/checksum"
)

// setupArtifactService создаёт сервис с реальным DiskStore во временной
// директории и in-memory репозиторием.
func setupArtifactService(t *testing.T) (*FileArtifactService, *fakeArtifactRepo, *blobstore.DiskStore) {
	t.Helper()

	presigner, err := blobstore.NewPresigner([]byte("test-secret"), "http://localhost:8020")
	if err != nil {
		t.Fatalf("Ошибка создания presigner: %v", err)
	}
	store, err := blobstore.NewDiskStore(t.TempDir(), presigner)
	if err != nil {
		t.Fatalf("Ошибка создания DiskStore: %v", err)
	}

	repo := newFakeArtifactRepo()
	cache := NewMetadataCache(100, time.Minute)
	svc := NewFileArtifactService(store, repo, cache, "artifacts", 0, testLogger())
	return svc, repo, store
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	svc, _, _ := setupArtifactService(t)
	ctx := context.Background()
	content := []byte("содержимое тестового отчёта")

	artifact, err := svc.Upload(ctx, UploadParams{
		Reader:      bytes.NewReader(content),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		UploadedBy:  "user@example.com",
		Tags:        []string{"invoice", "2026"},
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}

	// Ключ следует схеме YYYY/MM/DD/<base>_<8hex><ext>
	keyPattern := regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/report_[0-9a-f]{8}\.pdf$`)
	if !keyPattern.MatchString(artifact.StorageKey) {
		t.Errorf("Неожиданный формат ключа: %s", artifact.StorageKey)
	}
	if artifact.Bucket != "artifacts" {
		t.Errorf("Bucket: хотели artifacts, получили %s", artifact.Bucket)
	}
	if artifact.Size != int64(len(content)) {
		t.Errorf("Size: хотели %d, получили %d", len(content), artifact.Size)
	}
	wantChecksum := checksum.SumBytes(content)
	if artifact.Checksum != wantChecksum {
		t.Errorf("Checksum: хотели %s, получили %s", wantChecksum, artifact.Checksum)
	}

	meta, rc, err := svc.Download(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("Ошибка скачивания: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Ошибка чтения потока: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Скачанное содержимое не совпадает с загруженным")
	}
	if meta.Checksum != artifact.Checksum {
		t.Errorf("Checksum метаданных: хотели %s, получили %s", artifact.Checksum, meta.Checksum)
	}
}

func TestUploadNonSeekableStream(t *testing.T) {
	svc, _, _ := setupArtifactService(t)
	content := "поток без Seek"

	// io.MultiReader не реализует io.Seeker — сервис обязан буферизовать
	artifact, err := svc.Upload(context.Background(), UploadParams{
		Reader:     io.MultiReader(strings.NewReader(content)),
		Filename:   "stream.bin",
		UploadedBy: "user",
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	if artifact.Size != int64(len(content)) {
		t.Errorf("Size: хотели %d, получили %d", len(content), artifact.Size)
	}
	if artifact.ContentType != "application/octet-stream" {
		t.Errorf("ContentType по умолчанию: получили %s", artifact.ContentType)
	}
}

func TestUploadValidation(t *testing.T) {
	svc, _, _ := setupArtifactService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params UploadParams
	}{
		{"пустое имя файла", UploadParams{Reader: strings.NewReader("x"), UploadedBy: "u"}},
		{"нет загрузившего", UploadParams{Reader: strings.NewReader("x"), Filename: "a.txt"}},
		{"nil reader", UploadParams{Filename: "a.txt", UploadedBy: "u"}},
		{"пустое содержимое", UploadParams{Reader: strings.NewReader(""), Filename: "a.txt", UploadedBy: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Upload(ctx, tt.params); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Хотели ErrInvalidArgument, получили %v", err)
			}
		})
	}
}

func TestUploadPartialFailure(t *testing.T) {
	svc, repo, store := setupArtifactService(t)
	ctx := context.Background()

	// Имитируем отказ реестра метаданных после успешной записи объекта
	repoErr := errors.New("реестр недоступен")
	repo.insertFn = func(ctx context.Context, a *model.FileArtifact) error {
		return repoErr
	}

	_, err := svc.Upload(ctx, UploadParams{
		Reader:     strings.NewReader("данные orphan-объекта"),
		Filename:   "orphan.txt",
		UploadedBy: "user",
	})

	var partial *PartialUploadError
	if !errors.As(err, &partial) {
		t.Fatalf("Хотели PartialUploadError, получили %v", err)
	}
	if partial.Bucket != "artifacts" || partial.Key == "" {
		t.Errorf("PartialUploadError без координат orphan'а: bucket=%q key=%q",
			partial.Bucket, partial.Key)
	}
	if !errors.Is(err, repoErr) {
		t.Error("PartialUploadError не оборачивает исходную ошибку")
	}

	// Объект остался в хранилище — сервис не удаляет orphan сам
	rc, err := store.Get(ctx, partial.Bucket, partial.Key)
	if err != nil {
		t.Fatalf("Orphan-объект отсутствует в хранилище: %v", err)
	}
	rc.Close()
}

func TestDownloadNotFound(t *testing.T) {
	svc, _, _ := setupArtifactService(t)

	_, _, err := svc.Download(context.Background(), "несуществующий-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Хотели ErrNotFound, получили %v", err)
	}
}

func TestDownloadInconsistent(t *testing.T) {
	svc, _, store := setupArtifactService(t)
	ctx := context.Background()

	artifact, err := svc.Upload(ctx, UploadParams{
		Reader:     strings.NewReader("данные"),
		Filename:   "doc.txt",
		UploadedBy: "user",
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}

	// Удаляем объект из хранилища напрямую, метаданные остаются live
	if err := store.Delete(ctx, artifact.Bucket, artifact.StorageKey); err != nil {
		t.Fatalf("Ошибка удаления объекта: %v", err)
	}
	_, _, err = svc.Download(ctx, artifact.ID)
	if !errors.Is(err, ErrInconsistent) {
		t.Errorf("Хотели ErrInconsistent, получили %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Расхождение backend'ов не должно маскироваться под NotFound")
	}
}

func TestDeleteLifecycle(t *testing.T) {
	svc, _, store := setupArtifactService(t)
	ctx := context.Background()

	artifact, err := svc.Upload(ctx, UploadParams{
		Reader:     strings.NewReader("удаляемые данные"),
		Filename:   "temp.txt",
		UploadedBy: "user",
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}

	deleted, err := svc.Delete(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("Ошибка удаления: %v", err)
	}
	if !deleted {
		t.Error("Первое удаление должно вернуть true")
	}

	// Объект физически удалён
	if _, err := store.Get(ctx, artifact.Bucket, artifact.StorageKey); !errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("Объект должен быть удалён из хранилища, получили %v", err)
	}

	// Метаданные soft-deleted: обычное чтение — NotFound
	if _, err := svc.GetMetadata(ctx, artifact.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Soft-deleted запись должна давать ErrNotFound, получили %v", err)
	}

	// Повторное удаление — no-op без ошибки
	deleted, err = svc.Delete(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("Повторное удаление вернуло ошибку: %v", err)
	}
	if deleted {
		t.Error("Повторное удаление должно вернуть false")
	}

	// Удаление несуществующего id — тоже no-op
	deleted, err = svc.Delete(ctx, "нет-такого-id")
	if err != nil || deleted {
		t.Errorf("Удаление несуществующего id: хотели (false, nil), получили (%v, %v)", deleted, err)
	}
}

func TestPresignedURL(t *testing.T) {
	svc, _, _ := setupArtifactService(t)
	ctx := context.Background()

	artifact, err := svc.Upload(ctx, UploadParams{
		Reader:     strings.NewReader("данные по ссылке"),
		Filename:   "shared.txt",
		UploadedBy: "user",
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}

	link, err := svc.PresignedURL(ctx, artifact.ID, 0)
	if err != nil {
		t.Fatalf("Ошибка выдачи ссылки: %v", err)
	}
	if !strings.Contains(link, "token=") {
		t.Errorf("Ссылка без токена: %s", link)
	}
	if !strings.HasPrefix(link, "http://localhost:8020/") {
		t.Errorf("Ссылка с неожиданным базовым URL: %s", link)
	}

	if _, err := svc.PresignedURL(ctx, "нет-такого-id", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Errorf("Хотели ErrNotFound, получили %v", err)
	}
}

func TestVerify(t *testing.T) {
	svc, repo, _ := setupArtifactService(t)
	ctx := context.Background()

	artifact, err := svc.Upload(ctx, UploadParams{
		Reader:     strings.NewReader("проверяемые данные"),
		Filename:   "verified.txt",
		UploadedBy: "user",
	})
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}

	if err := svc.Verify(ctx, artifact.ID); err != nil {
		t.Errorf("Verify корректного артефакта вернул ошибку: %v", err)
	}

	// Портим записанную контрольную сумму в реестре
	repo.mu.Lock()
	repo.items[artifact.ID].Checksum = "0000000000000000000000000000000000000000000000000000000000000000"
	repo.mu.Unlock()
	svc.cache.Delete(artifact.ID)

	if err := svc.Verify(ctx, artifact.ID); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Хотели ErrChecksumMismatch, получили %v", err)
	}
}

func TestSearchAndList(t *testing.T) {
	svc, _, _ := setupArtifactService(t)
	ctx := context.Background()

	upload := func(filename, uploadedBy, subjectID string, tags []string) {
		t.Helper()
		_, err := svc.Upload(ctx, UploadParams{
			Reader:     strings.NewReader("данные " + filename),
			Filename:   filename,
			UploadedBy: uploadedBy,
			SubjectID:  subjectID,
			Tags:       tags,
		})
		if err != nil {
			t.Fatalf("Ошибка загрузки %s: %v", filename, err)
		}
	}

	upload("a.txt", "alice", "veh-1", []string{"invoice"})
	upload("b.txt", "alice", "veh-2", []string{"photo"})
	upload("c.txt", "bob", "veh-1", []string{"invoice", "photo"})

	byTags, err := svc.SearchByTags(ctx, []string{"invoice"})
	if err != nil {
		t.Fatalf("Ошибка поиска по тегам: %v", err)
	}
	if len(byTags) != 2 {
		t.Errorf("Поиск по тегу invoice: хотели 2, получили %d", len(byTags))
	}

	byUploader, err := svc.ListByUploader(ctx, "alice")
	if err != nil {
		t.Fatalf("Ошибка выборки по загрузившему: %v", err)
	}
	if len(byUploader) != 2 {
		t.Errorf("Артефакты alice: хотели 2, получили %d", len(byUploader))
	}

	bySubject, err := svc.ListBySubject(ctx, "veh-1")
	if err != nil {
		t.Fatalf("Ошибка выборки по subject: %v", err)
	}
	if len(bySubject) != 2 {
		t.Errorf("Артефакты veh-1: хотели 2, получили %d", len(bySubject))
	}

	// Пустые аргументы — ErrInvalidArgument
	if _, err := svc.SearchByTags(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SearchByTags(nil): хотели ErrInvalidArgument, получили %v", err)
	}
	if _, err := svc.ListByUploader(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ListByUploader(\"\"): хотели ErrInvalidArgument, получили %v", err)
	}
}
