// Package domain определяет доменные ошибки платформы. Все ошибки
// бизнес-уровня поднимаются наверх обёрнутыми через %w, поэтому
// обработчики проверяют их с помощью errors.Is и транслируют
// в HTTP-статусы.
package domain

import "errors"

var (
	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists пользователь с таким email уже зарегистрирован.
	ErrUserExists = errors.New("user already exists")
	// ErrSubscriptionNotFound у пользователя нет подписки.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionExists у пользователя уже есть подписка.
	ErrSubscriptionExists = errors.New("subscription already exists")
	// ErrSubscriptionInactive окно действия подписки не содержит текущий момент.
	ErrSubscriptionInactive = errors.New("subscription is not active")
	// ErrProjectNotFound проект не найден или не принадлежит пользователю.
	ErrProjectNotFound = errors.New("project not found")
	// ErrDeviceLimitReached достигнут лимит устройств по подписке.
	ErrDeviceLimitReached = errors.New("device limit reached")
	// ErrTokenInvalid refresh-токен не найден или просрочен.
	ErrTokenInvalid = errors.New("refresh token is invalid or expired")
	// ErrInvalidCredentials неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
