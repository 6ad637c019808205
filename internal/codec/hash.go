// Пакет codec — отпечаток содержимого (SHA-256) и симметричное
// шифрование объектов перед записью в хранилище.
package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashSize — длина hex-представления отпечатка.
const HashSize = sha256.Size * 2

// Hash возвращает SHA-256 отпечаток данных в виде lowercase hex.
// Используется как ключ дедупликации.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader вычисляет отпечаток потока, возвращает hex и количество прочитанных байт.
func HashReader(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", n, fmt.Errorf("ошибка чтения данных для хэширования: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// IsHash проверяет, что строка похожа на отпечаток (64 hex-символа в нижнем регистре).
func IsHash(s string) bool {
	if len(s) != HashSize {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
