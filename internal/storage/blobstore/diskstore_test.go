package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// newTestStore создаёт DiskStore во временной директории.
func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewDiskStore ошибка: %v", err)
	}
	return store
}

// TestDiskStore_PutGetRoundTrip проверяет запись и чтение объекта.
func TestDiskStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureBucket(ctx, "artifacts"); err != nil {
		t.Fatalf("EnsureBucket ошибка: %v", err)
	}

	data := []byte("binary payload")
	headers := map[string]string{
		HeaderUploadedBy: "alice",
		HeaderChecksum:   "deadbeef",
	}
	err := store.Put(ctx, "artifacts", "2026/08/30/doc_a1b2c3d4.pdf",
		bytes.NewReader(data), int64(len(data)), "application/pdf", headers)
	if err != nil {
		t.Fatalf("Put ошибка: %v", err)
	}

	rc, err := store.Get(ctx, "artifacts", "2026/08/30/doc_a1b2c3d4.pdf")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll ошибка: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("прочитано %q, ожидалось %q", got, data)
	}

	info, err := store.Stat(ctx, "artifacts", "2026/08/30/doc_a1b2c3d4.pdf")
	if err != nil {
		t.Fatalf("Stat ошибка: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Size = %d, ожидался %d", info.Size, len(data))
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, ожидался application/pdf", info.ContentType)
	}
	if info.Headers[HeaderUploadedBy] != "alice" {
		t.Errorf("заголовок uploaded-by = %q, ожидался alice", info.Headers[HeaderUploadedBy])
	}
}

// TestDiskStore_PutSizeMismatch проверяет ErrInvalidArgument при несовпадении размера.
func TestDiskStore_PutSizeMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := []byte("abc")
	err := store.Put(ctx, "b", "k.bin", bytes.NewReader(data), 10, "application/octet-stream", nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ожидался ErrInvalidArgument, получено: %v", err)
	}

	// Объект не должен появиться после неудачного put
	if _, err := store.Stat(ctx, "b", "k.bin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("после неудачного Put объект не должен существовать: %v", err)
	}
}

// TestDiskStore_GetNotFound проверяет ErrNotFound для отсутствующего объекта.
func TestDiskStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "b", "missing.bin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено: %v", err)
	}
}

// TestDiskStore_DeleteIdempotent проверяет идемпотентность удаления.
func TestDiskStore_DeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := []byte("x")
	if err := store.Put(ctx, "b", "k.bin", bytes.NewReader(data), 1, "text/plain", nil); err != nil {
		t.Fatalf("Put ошибка: %v", err)
	}

	if err := store.Delete(ctx, "b", "k.bin"); err != nil {
		t.Fatalf("первый Delete ошибка: %v", err)
	}
	// Повторное удаление — no-op, не ошибка
	if err := store.Delete(ctx, "b", "k.bin"); err != nil {
		t.Fatalf("повторный Delete должен быть no-op: %v", err)
	}

	if _, err := store.Get(ctx, "b", "k.bin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("объект должен быть физически удалён: %v", err)
	}
}

// TestDiskStore_EnsureBucketIdempotent проверяет повторное создание bucket'а.
func TestDiskStore_EnsureBucketIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.EnsureBucket(ctx, "b"); err != nil {
		t.Fatalf("EnsureBucket ошибка: %v", err)
	}
	if err := store.EnsureBucket(ctx, "b"); err != nil {
		t.Fatalf("повторный EnsureBucket должен быть no-op: %v", err)
	}
}

// TestDiskStore_PathTraversal проверяет защиту от выхода за пределы хранилища.
func TestDiskStore_PathTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct{ bucket, key string }{
		{"../outside", "k"},
		{"b", "../../etc/passwd"},
		{"b", "/abs/path"},
		{"b", ""},
		{"", "k"},
	}
	for _, c := range cases {
		_, err := store.Get(ctx, c.bucket, c.key)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Get(%q, %q): ожидался ErrInvalidArgument, получено %v", c.bucket, c.key, err)
		}
	}
}

// TestDiskStore_Walk проверяет обход объектов bucket'а без служебных файлов.
func TestDiskStore_Walk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"2026/01/01/a.txt", "2026/01/02/b.txt"} {
		if err := store.Put(ctx, "b", key, bytes.NewReader([]byte("x")), 1, "text/plain", nil); err != nil {
			t.Fatalf("Put(%s) ошибка: %v", key, err)
		}
	}

	var keys []string
	err := store.Walk(ctx, "b", func(info *ObjectInfo) error {
		keys = append(keys, info.Key)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Walk вернул %d объектов (%v), ожидалось 2 — attr.json должны пропускаться", len(keys), keys)
	}
}

// TestDiskStore_WalkMissingBucket проверяет обход несозданного bucket'а.
func TestDiskStore_WalkMissingBucket(t *testing.T) {
	store := newTestStore(t)

	called := false
	err := store.Walk(context.Background(), "missing", func(*ObjectInfo) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Walk по отсутствующему bucket не должен быть ошибкой: %v", err)
	}
	if called {
		t.Error("fn не должна вызываться для пустого bucket")
	}
}
