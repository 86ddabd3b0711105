// Пакет checksum — вычисление SHA-256 дайджеста содержимого артефактов.
// Дайджест считается по всему потоку, при этом позиция чтения seekable-потока
// восстанавливается, чтобы тот же поток можно было затем загрузить в хранилище.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Sum вычисляет SHA-256 hex-дайджест всего потока.
// Поток вычитывается до конца и не восстанавливается —
// для повторного использования потока см. SumSeeker.
func Sum(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SumBytes вычисляет SHA-256 hex-дайджест среза байт.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumSeeker вычисляет SHA-256 hex-дайджест от текущей позиции потока до конца
// и восстанавливает исходную позицию чтения.
func SumSeeker(rs io.ReadSeeker) (string, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("ошибка определения позиции потока: %w", err)
	}

	digest, err := Sum(rs)
	if err != nil {
		return "", err
	}

	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return "", fmt.Errorf("ошибка восстановления позиции потока: %w", err)
	}
	return digest, nil
}

// Seekable возвращает io.ReadSeeker для произвольного потока.
// Если поток уже seekable — возвращается как есть.
// Иначе содержимое буферизуется в память (требование последовательного
// двухпроходного чтения: сначала checksum, затем загрузка).
func Seekable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка буферизации потока: %w", err)
	}
	return bytes.NewReader(data), nil
}
