package models

import "time"

// Subscription представляет подписку пользователя. У пользователя может
// быть не более одной подписки (уникальность по UserID обеспечивается
// ограничением в базе данных). Окно действия подписки —
// [BeginDate, BeginDate + Duration дней), правая граница не включается.
type Subscription struct {
	ID              int       // Идентификатор записи
	UserID          int       // Владелец подписки (уникальный)
	IncludeSDK      bool      // Доступна ли интеграция SDK
	IncludeMobile   bool      // Доступна ли мобильная интеграция
	MaxDevicesCount int       // Максимальное число устройств по подписке
	Codes           []string  // Упорядоченный список кодов подписки
	BeginDate       time.Time // Дата начала действия
	Duration        int       // Длительность в днях
}

// DummySubscription используется для приёма данных новой подписки из JSON-запроса.
type DummySubscription struct {
	IncludeSDK      bool     `json:"include_sdk"`
	IncludeMobile   bool     `json:"include_mobile"`
	MaxDevicesCount int      `json:"max_devices_count" validate:"required,gt=0"`
	Codes           []string `json:"codes,omitempty" validate:"omitempty"`
	BeginDate       string   `json:"begin_date" validate:"required"` // Дата в формате 02-01-2006
	Duration        int      `json:"duration" validate:"required,gt=0"`
}

// DummySubscriptionUpdate используется для частичного обновления подписки.
// Поля-указатели: nil означает, что поле не меняется.
type DummySubscriptionUpdate struct {
	IncludeSDK      *bool     `json:"include_sdk,omitempty"`
	IncludeMobile   *bool     `json:"include_mobile,omitempty"`
	MaxDevicesCount *int      `json:"max_devices_count,omitempty" validate:"omitempty,gt=0"`
	Codes           *[]string `json:"codes,omitempty"`
	BeginDate       *string   `json:"begin_date,omitempty"`
	Duration        *int      `json:"duration,omitempty" validate:"omitempty,gt=0"`
}

// SubscriptionPatch набор изменяемых полей подписки, передаваемый в слой
// доступа к данным после валидации и парсинга дат.
type SubscriptionPatch struct {
	IncludeSDK      *bool
	IncludeMobile   *bool
	MaxDevicesCount *int
	Codes           *[]string
	BeginDate       *time.Time
	Duration        *int
}

// SubscriptionInfo проекция подписки для ответа API и кеша.
type SubscriptionInfo struct {
	IncludeSDK      bool      `json:"include_sdk"`
	IncludeMobile   bool      `json:"include_mobile"`
	MaxDevicesCount int       `json:"max_devices_count"`
	Codes           []string  `json:"codes"`
	BeginDate       time.Time `json:"begin_date"`
	Duration        int       `json:"duration"`
}

// DummyDevice используется для приёма запроса на регистрацию устройства.
// APIKey — 64 hex-символа (256 бит).
type DummyDevice struct {
	APIKey string `json:"api_key" validate:"required,len=64,hexadecimal"`
}

// DeviceRegisteredEvent публикуется в очередь после успешной
// регистрации устройства.
type DeviceRegisteredEvent struct {
	UserID       int       `json:"user_id"`
	ProjectID    string    `json:"project_id"`
	ProjectType  string    `json:"project_type"`
	RegisteredAt time.Time `json:"registered_at"`
}
