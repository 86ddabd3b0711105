// testhelpers_test.go — in-memory фейки backend'ов для unit-тестов сервисов.
// Полноценная реализация через pgx проверяется интеграционными тестами
// репозиториев; здесь важны только семантика ошибок и порядок операций.
package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/repository"
)

// testLogger — slog-логгер уровня Error, чтобы не засорять вывод тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeArtifactRepo — потокобезопасный in-memory ArtifactRepository.
// Поля-функции позволяют подменить отдельные операции для имитации отказов.
type fakeArtifactRepo struct {
	mu    sync.Mutex
	items map[string]*model.FileArtifact

	insertFn     func(ctx context.Context, a *model.FileArtifact) error
	softDeleteFn func(ctx context.Context, id string) error
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{items: make(map[string]*model.FileArtifact)}
}

func (f *fakeArtifactRepo) Insert(ctx context.Context, a *model.FileArtifact) error {
	if f.insertFn != nil {
		return f.insertFn(ctx, a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[a.ID]; ok {
		return nil // повтор с тем же id — no-op
	}
	for _, existing := range f.items {
		if existing.Bucket == a.Bucket && existing.StorageKey == a.StorageKey {
			return repository.ErrConflict
		}
	}
	cp := *a
	f.items[a.ID] = &cp
	return nil
}

func (f *fakeArtifactRepo) GetByID(ctx context.Context, id string) (*model.FileArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Deleted {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeArtifactRepo) GetAnyByID(ctx context.Context, id string) (*model.FileArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeArtifactRepo) GetByLocation(ctx context.Context, bucket, key string) (*model.FileArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.Bucket == bucket && a.StorageKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeArtifactRepo) ListByUploader(ctx context.Context, uploadedBy string) ([]*model.FileArtifact, error) {
	return f.filter(func(a *model.FileArtifact) bool {
		return a.UploadedBy == uploadedBy
	}), nil
}

func (f *fakeArtifactRepo) SearchByTags(ctx context.Context, tags []string) ([]*model.FileArtifact, error) {
	return f.filter(func(a *model.FileArtifact) bool {
		for _, want := range tags {
			for _, got := range a.Tags {
				if want == got {
					return true
				}
			}
		}
		return false
	}), nil
}

func (f *fakeArtifactRepo) FindByContentType(ctx context.Context, contentType string) ([]*model.FileArtifact, error) {
	return f.filter(func(a *model.FileArtifact) bool {
		return a.ContentType == contentType
	}), nil
}

func (f *fakeArtifactRepo) FindByAttribute(ctx context.Context, key, value string) ([]*model.FileArtifact, error) {
	return f.filter(func(a *model.FileArtifact) bool {
		return a.Attributes[key] == value
	}), nil
}

func (f *fakeArtifactRepo) SoftDelete(ctx context.Context, id string) error {
	if f.softDeleteFn != nil {
		return f.softDeleteFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Deleted = true
	return nil
}

// filter возвращает live-записи, удовлетворяющие предикату, новые первыми.
func (f *fakeArtifactRepo) filter(pred func(*model.FileArtifact) bool) []*model.FileArtifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.FileArtifact
	for _, a := range f.items {
		if a.Deleted || !pred(a) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	return result
}

var _ repository.ArtifactRepository = (*fakeArtifactRepo)(nil)

// fakeDocumentRepo — потокобезопасный in-memory DocumentVersionRepository
// с теми же инвариантами уникальности, что и уникальные индексы БД.
type fakeDocumentRepo struct {
	mu    sync.Mutex
	items []*model.DocumentVersion
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{}
}

func (f *fakeDocumentRepo) Insert(ctx context.Context, v *model.DocumentVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(v)
}

// insertLocked проверяет инварианты уникальности, имитируя индексы БД:
// UNIQUE (subject_id, version) и частичный UNIQUE (subject_id) WHERE active.
func (f *fakeDocumentRepo) insertLocked(v *model.DocumentVersion) error {
	for _, existing := range f.items {
		if existing.SubjectID == v.SubjectID && existing.Version == v.Version {
			return repository.ErrConflict
		}
		if v.Active && existing.SubjectID == v.SubjectID && existing.Active {
			return repository.ErrConflict
		}
	}
	cp := *v
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeDocumentRepo) ReplaceActive(ctx context.Context, v *model.DocumentVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.SubjectID == v.SubjectID && existing.Active {
			existing.Active = false
		}
	}
	return f.insertLocked(v)
}

func (f *fakeDocumentRepo) LatestActive(ctx context.Context, subjectID string) (*model.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.items {
		if v.SubjectID == subjectID && v.Active {
			cp := *v
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocumentRepo) MaxVersion(ctx context.Context, subjectID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxVersion := 0
	for _, v := range f.items {
		if v.SubjectID == subjectID && v.Version > maxVersion {
			maxVersion = v.Version
		}
	}
	return maxVersion, nil
}

func (f *fakeDocumentRepo) History(ctx context.Context, subjectID string) ([]*model.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.DocumentVersion
	for _, v := range f.items {
		if v.SubjectID == subjectID {
			cp := *v
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version > result[j].Version
	})
	return result, nil
}

func (f *fakeDocumentRepo) SearchByTags(ctx context.Context, tags []string) ([]*model.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.DocumentVersion
	for _, v := range f.items {
		if !v.Active {
			continue
		}
		for _, want := range tags {
			for _, got := range v.Tags {
				if want == got {
					cp := *v
					result = append(result, &cp)
				}
			}
		}
	}
	return result, nil
}

func (f *fakeDocumentRepo) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.items {
		if v.ID == id {
			v.Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

var _ repository.DocumentVersionRepository = (*fakeDocumentRepo)(nil)
