package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"
)

// TestSumSeeker проверяет вычисление дайджеста с восстановлением позиции.
func TestSumSeeker(t *testing.T) {
	data := []byte("hello artifact store")
	rs := bytes.NewReader(data)

	digest, err := SumSeeker(rs)
	if err != nil {
		t.Fatalf("SumSeeker ошибка: %v", err)
	}

	want := sha256.Sum256(data)
	if digest != hex.EncodeToString(want[:]) {
		t.Errorf("digest = %s, ожидался %s", digest, hex.EncodeToString(want[:]))
	}

	// Позиция должна быть восстановлена: повторное чтение даёт весь поток
	rest, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll ошибка: %v", err)
	}
	if !bytes.Equal(rest, data) {
		t.Errorf("после SumSeeker прочитано %q, ожидалось %q", rest, data)
	}
}

// TestSumSeeker_MidStream проверяет восстановление ненулевой позиции.
func TestSumSeeker_MidStream(t *testing.T) {
	rs := bytes.NewReader([]byte("prefix|payload"))

	// Сдвигаем позицию на середину потока
	if _, err := rs.Seek(7, io.SeekStart); err != nil {
		t.Fatalf("Seek ошибка: %v", err)
	}

	digest, err := SumSeeker(rs)
	if err != nil {
		t.Fatalf("SumSeeker ошибка: %v", err)
	}
	if digest != SumBytes([]byte("payload")) {
		t.Errorf("digest считается не от текущей позиции")
	}

	rest, _ := io.ReadAll(rs)
	if string(rest) != "payload" {
		t.Errorf("позиция не восстановлена: прочитано %q", rest)
	}
}

// TestSeekable_Buffering проверяет буферизацию non-seekable источника.
func TestSeekable_Buffering(t *testing.T) {
	// strings.Reader — seekable, оборачиваем в io.Reader без Seek
	src := io.MultiReader(strings.NewReader("abc"), strings.NewReader("def"))

	rs, err := Seekable(src)
	if err != nil {
		t.Fatalf("Seekable ошибка: %v", err)
	}

	digest, err := SumSeeker(rs)
	if err != nil {
		t.Fatalf("SumSeeker ошибка: %v", err)
	}
	if digest != SumBytes([]byte("abcdef")) {
		t.Errorf("digest буферизованного потока некорректен")
	}

	data, _ := io.ReadAll(rs)
	if string(data) != "abcdef" {
		t.Errorf("буферизованный поток не перечитывается: %q", data)
	}
}

// TestSeekable_Passthrough проверяет, что seekable-поток возвращается как есть.
func TestSeekable_Passthrough(t *testing.T) {
	src := bytes.NewReader([]byte("x"))
	rs, err := Seekable(src)
	if err != nil {
		t.Fatalf("Seekable ошибка: %v", err)
	}
	if rs != io.ReadSeeker(src) {
		t.Error("seekable-источник должен возвращаться без буферизации")
	}
}
