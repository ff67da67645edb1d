package models

import "time"

// Token представляет refresh-токен пользователя. Токен одноразовый:
// при обмене на новую пару запись удаляется из хранилища.
type Token struct {
	ID           int       // Идентификатор записи
	RefreshToken string    // Значение refresh-токена
	UserID       int       // Владелец токена
	ExpiresAt    time.Time // Срок действия
}

// TokenPair пара access/refresh токенов, выдаваемая при входе и обмене.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
