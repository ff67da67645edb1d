// Package apikey генерирует API-ключи проектов: 256 бит случайности
// в hex-представлении (64 символа).
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Len длина ключа в hex-символах.
const Len = 64

// Generate возвращает новый случайный API-ключ.
func Generate() (string, error) {
	const op = "apikey.Generate"
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(buf), nil
}
