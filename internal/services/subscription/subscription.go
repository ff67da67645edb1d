// Package services содержит бизнес-логику управления подписками и
// регистрацией устройств.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/lib/entitlement"
	"github.com/avoronkov/device-gate/internal/lib/quota"
	"github.com/avoronkov/device-gate/internal/lib/sl"
	"github.com/avoronkov/device-gate/internal/metrics"
	"github.com/avoronkov/device-gate/internal/models"
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreateSubscription добавляет подписку и возвращает её ID.
	// Дубликат по пользователю возвращается как domain.ErrSubscriptionExists.
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	// GetSubscription возвращает подписку пользователя.
	GetSubscription(ctx context.Context, userID int) (*models.Subscription, error)
	// UpdateSubscription обновляет поля подписки, возвращает число изменённых строк.
	UpdateSubscription(ctx context.Context, userID int, upd models.SubscriptionPatch) (int, error)
	// BeginDeviceTx открывает транзакцию регистрации устройства.
	BeginDeviceTx(ctx context.Context) (DeviceTx, error)
}

// DeviceTx транзакция регистрации устройства. Реализация обязана
// блокировать строку пользователя в LockUser до конца транзакции.
type DeviceTx interface {
	LockUser(ctx context.Context, userID int) (*models.User, error)
	Subscription(ctx context.Context, userID int) (*models.Subscription, error)
	ProjectByAPIKey(ctx context.Context, apiKey string, userID int) (*models.Project, error)
	IncrementDeviceCounters(ctx context.Context, projectID string, userID int) error
	Commit() error
	Rollback() error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// EventPublisher публикует доменные события в очередь.
type EventPublisher interface {
	Publish(message any) error
}

// SubscriptionService реализует бизнес-логику подписок: жизненный цикл,
// статус, остаток дней и транзакцию регистрации устройства.
type SubscriptionService struct {
	repo   SubscriptionRepository
	cache  Cache
	events EventPublisher
	log    *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, cache Cache, events EventPublisher, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:   repo,
		cache:  cache,
		events: events,
		log:    log,
	}
}

func cacheKey(userID int) string {
	return fmt.Sprintf("subscription:user:%d", userID)
}

// Create создает подписку пользователя. У пользователя может быть только
// одна подписка: предварительная проверка служит ранним выходом, а
// источником истины остаётся ограничение уникальности в базе — гонка
// двух конкурентных Create завершится domain.ErrSubscriptionExists.
func (s *SubscriptionService) Create(ctx context.Context, userID int, req models.DummySubscription) (int, error) {
	beginDate, err := time.Parse("02-01-2006", req.BeginDate)
	if err != nil {
		return 0, fmt.Errorf("invalid begin date: %w", err)
	}

	if _, err := s.repo.GetSubscription(ctx, userID); err == nil {
		return 0, domain.ErrSubscriptionExists
	} else if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return 0, err
	}

	codes := req.Codes
	if codes == nil {
		codes = []string{}
	}
	sub := models.Subscription{
		UserID:          userID,
		IncludeSDK:      req.IncludeSDK,
		IncludeMobile:   req.IncludeMobile,
		MaxDevicesCount: req.MaxDevicesCount,
		Codes:           codes,
		BeginDate:       beginDate,
		Duration:        req.Duration,
	}

	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return 0, err
	}
	s.log.Info("created new subscription", slog.Int("id", id), slog.Int("user_id", userID))

	if err := s.cache.Invalidate(cacheKey(userID)); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey(userID)), sl.Err(err))
	}
	return id, nil
}

// Read возвращает проекцию подписки пользователя, используя кеш или хранилище.
func (s *SubscriptionService) Read(ctx context.Context, userID int) (*models.SubscriptionInfo, error) {
	var info *models.SubscriptionInfo
	key := cacheKey(userID)
	found, err := s.cache.Get(key, &info)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
	}
	if found && info != nil {
		return info, nil
	}

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	info = &models.SubscriptionInfo{
		IncludeSDK:      sub.IncludeSDK,
		IncludeMobile:   sub.IncludeMobile,
		MaxDevicesCount: sub.MaxDevicesCount,
		Codes:           sub.Codes,
		BeginDate:       sub.BeginDate,
		Duration:        sub.Duration,
	}
	if err := s.cache.Set(key, info, time.Hour); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", key), sl.Err(err))
	}
	return info, nil
}

// Update частично обновляет подписку пользователя и возвращает число
// изменённых строк. Если не изменено ни одной строки — подписки нет.
func (s *SubscriptionService) Update(ctx context.Context, userID int, req models.DummySubscriptionUpdate) (int, error) {
	patch := models.SubscriptionPatch{
		IncludeSDK:      req.IncludeSDK,
		IncludeMobile:   req.IncludeMobile,
		MaxDevicesCount: req.MaxDevicesCount,
		Codes:           req.Codes,
		Duration:        req.Duration,
	}
	if req.BeginDate != nil {
		beginDate, err := time.Parse("02-01-2006", *req.BeginDate)
		if err != nil {
			return 0, fmt.Errorf("invalid begin date: %w", err)
		}
		patch.BeginDate = &beginDate
	}

	rows, err := s.repo.UpdateSubscription(ctx, userID, patch)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, domain.ErrSubscriptionNotFound
	}
	s.log.Info("updated subscription", slog.Int("user_id", userID), slog.Int("rows", rows))

	if err := s.cache.Invalidate(cacheKey(userID)); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey(userID)), sl.Err(err))
	}
	return rows, nil
}

// IsActive сообщает, активна ли подписка пользователя в данный момент.
// Отсутствие подписки — domain.ErrSubscriptionNotFound, не "неактивна".
func (s *SubscriptionService) IsActive(ctx context.Context, userID int) (bool, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return entitlement.IsActive(sub, time.Now().UTC()), nil
}

// DaysRemaining возвращает число полных дней до окончания подписки.
// Значение может быть отрицательным, если подписка истекла.
func (s *SubscriptionService) DaysRemaining(ctx context.Context, userID int) (int, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return 0, err
	}
	return entitlement.DaysRemaining(sub, time.Now().UTC()), nil
}

// AddDevice регистрирует устройство по API-ключу проекта пользователя.
//
// Все шаги выполняются в одной транзакции: блокировка строки
// пользователя, чтение подписки, решение о праве (подписка активна),
// чтение проекта по паре (api_key, user_id), проверка лимита и два
// инкремента счётчиков. Любая ошибка до Commit откатывает транзакцию
// целиком — частичное состояние не наблюдаемо. Блокировка строки
// пользователя сериализует конкурентные вызовы для одного пользователя:
// лимит не может быть превышен.
func (s *SubscriptionService) AddDevice(ctx context.Context, userID int, apiKey string) error {
	err := s.addDevice(ctx, userID, apiKey)
	metrics.DeviceRegistrations.WithLabelValues(registrationResult(err)).Inc()
	return err
}

func (s *SubscriptionService) addDevice(ctx context.Context, userID int, apiKey string) error {
	tx, err := s.repo.BeginDeviceTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			s.log.Warn("failed to rollback device tx", sl.Err(err))
		}
	}()

	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return err
	}
	sub, err := tx.Subscription(ctx, userID)
	if err != nil {
		return err
	}
	// Решение о праве принимается до проверки лимита и только по
	// полностью вычисленному значению.
	active := entitlement.IsActive(sub, time.Now().UTC())
	if !active {
		return domain.ErrSubscriptionInactive
	}
	project, err := tx.ProjectByAPIKey(ctx, apiKey, userID)
	if err != nil {
		return err
	}
	if !quota.CanAddDevice(user.CurrentDevicesCount, sub.MaxDevicesCount) {
		return domain.ErrDeviceLimitReached
	}
	if err := tx.IncrementDeviceCounters(ctx, project.ID, userID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info("device registered",
		slog.Int("user_id", userID),
		slog.String("project_id", project.ID))

	if s.events != nil {
		event := models.DeviceRegisteredEvent{
			UserID:       userID,
			ProjectID:    project.ID,
			ProjectType:  project.Type,
			RegisteredAt: time.Now().UTC(),
		}
		if err := s.events.Publish(event); err != nil {
			s.log.Warn("failed to publish device event", sl.Err(err))
		}
	}
	return nil
}

func registrationResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, domain.ErrUserNotFound):
		return metrics.ResultUserNotFound
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return metrics.ResultSubscriptionMissing
	case errors.Is(err, domain.ErrSubscriptionInactive):
		return metrics.ResultInactive
	case errors.Is(err, domain.ErrProjectNotFound):
		return metrics.ResultProjectNotFound
	case errors.Is(err, domain.ErrDeviceLimitReached):
		return metrics.ResultLimitReached
	default:
		return metrics.ResultStorageError
	}
}
