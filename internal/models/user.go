// Package models содержит доменные структуры платформы: пользователей,
// проекты, подписки и refresh-токены, а также вспомогательные типы
// для приёма данных из JSON-запросов.
package models

// User представляет зарегистрированного пользователя системы.
// PasswordHash равен nil для пользователей, созданных через OAuth.
type User struct {
	ID                  int     // Уникальный идентификатор пользователя
	FirstName           string  // Имя
	LastName            string  // Фамилия
	CompanyName         string  // Название компании
	Email               string  // Электронная почта (уникальная)
	PasswordHash        *string // Хэш пароля, nil для OAuth-аккаунтов
	INN                 *string // ИНН компании (опционально)
	CurrentDevicesCount int     // Суммарное число устройств по всем проектам пользователя
}

// DummyRegister используется для приёма данных регистрации из JSON-запроса.
type DummyRegister struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	CompanyName string `json:"company_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

// DummyLogin используется для приёма данных входа из JSON-запроса.
type DummyLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// DummyRefresh используется для приёма refresh-токена из JSON-запроса.
type DummyRefresh struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// DummyUserUpdate используется для частичного обновления профиля.
// Поля-указатели: nil означает, что поле не меняется.
type DummyUserUpdate struct {
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty"`
	CompanyName *string `json:"company_name,omitempty" validate:"omitempty"`
	INN         *string `json:"inn,omitempty" validate:"omitempty,numeric,min=10,max=12"`
}

// UserInfo проекция профиля пользователя для ответа API.
type UserInfo struct {
	FirstName           string  `json:"first_name"`
	LastName            string  `json:"last_name"`
	CompanyName         string  `json:"company_name"`
	Email               string  `json:"email"`
	INN                 *string `json:"inn,omitempty"`
	CurrentDevicesCount int     `json:"current_devices_count"`
}
