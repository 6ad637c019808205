// cipher.go — шифрование объектов XChaCha20-Poly1305.
//
// Формат шифротекста:
//
//	version (1 байт) | nonce (24 байта) | sealed (plaintext + 16 байт тега)
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// formatV1 — текущая версия формата шифротекста.
const formatV1 byte = 0x01

// KeySize — требуемая длина ключа в байтах.
const KeySize = chacha20poly1305.KeySize

// ErrDecryption — шифротекст повреждён или ключ не подходит.
var ErrDecryption = errors.New("ошибка расшифровки")

// Cipher шифрует и расшифровывает объекты ключом процесса.
// Ключ задаётся один раз при создании и не меняется.
// Безопасен для конкурентного использования.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher создаёт Cipher из 32-байтного ключа.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("некорректная длина ключа: %d байт, ожидается %d", len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации шифра: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt шифрует данные со случайным nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out[0] = formatV1
	if _, err := rand.Read(out[1 : 1+nonceSize]); err != nil {
		return nil, fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return c.aead.Seal(out, out[1:1+nonceSize], plaintext, nil), nil
}

// Decrypt расшифровывает данные. При любой ошибке возвращает ошибку,
// оборачивающую ErrDecryption, и никогда не возвращает частичный результат.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: шифротекст слишком короткий (%d байт)", ErrDecryption, len(ciphertext))
	}
	if ciphertext[0] != formatV1 {
		return nil, fmt.Errorf("%w: неизвестная версия формата 0x%02x", ErrDecryption, ciphertext[0])
	}

	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[1+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// ParseKey декодирует ключ из base64 и проверяет длину.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("некорректный base64 ключа: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("некорректная длина ключа: %d байт, ожидается %d", len(key), KeySize)
	}
	return key, nil
}

// GenerateKey создаёт новый случайный ключ и возвращает его в base64.
// Используется командой keygen; сервис ключ не генерирует.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("ошибка генерации ключа: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
