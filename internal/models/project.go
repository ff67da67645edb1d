package models

// Типы проектов. Тип определяет, какой вид интеграции использует проект.
const (
	ProjectTypeSDK    = "SDK"
	ProjectTypeMobile = "mobile"
)

// Project представляет проект пользователя. Каждый проект имеет
// уникальный API-ключ, по которому к нему привязываются устройства.
// DevicesCount никогда не превышает число устройств, реально
// зарегистрированных по API-ключу проекта.
type Project struct {
	ID           string `json:"id"`            // UUID проекта
	Name         string `json:"name"`          // Название проекта
	Type         string `json:"type"`          // Тип проекта: SDK или mobile
	APIKey       string `json:"api_key"`       // Уникальный API-ключ (256 бит, hex)
	DevicesCount int    `json:"devices_count"` // Число устройств, привязанных к проекту
	UserID       int    `json:"user_id"`       // Владелец проекта
}

// DummyProject используется для приёма данных нового проекта из JSON-запроса.
type DummyProject struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required,oneof=SDK mobile"`
}

// DummyProjectRename используется для смены названия проекта.
type DummyProjectRename struct {
	Name string `json:"name" validate:"required"`
}
