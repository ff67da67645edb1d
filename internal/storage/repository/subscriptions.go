package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/models"
)

// CreateSubscription вставляет новую подписку пользователя и возвращает её ID.
// Нарушение уникальности по user_id транслируется в domain.ErrSubscriptionExists:
// ограничение в базе — источник истины для правила "одна подписка на пользователя".
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	codes, err := json.Marshal(sub.Codes)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscriptions (user_id, include_sdk, include_mobile,
			      max_devices_count, codes, begin_date, duration)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id`
	var newID int
	if err := s.DB.QueryRowContext(ctx, query,
		sub.UserID, sub.IncludeSDK, sub.IncludeMobile, sub.MaxDevicesCount,
		string(codes), sub.BeginDate, sub.Duration).Scan(&newID); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, domain.ErrSubscriptionExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetSubscription возвращает подписку пользователя.
func (s *Storage) GetSubscription(ctx context.Context, userID int) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, include_sdk, include_mobile, max_devices_count,
			      codes, begin_date, duration
			  FROM subscriptions
			  WHERE user_id = $1`
	return scanSubscription(s.DB.QueryRowContext(ctx, query, userID), op)
}

func scanSubscription(row *sql.Row, op string) (*models.Subscription, error) {
	var sub models.Subscription
	var codes string
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.IncludeSDK, &sub.IncludeMobile,
		&sub.MaxDevicesCount, &codes, &sub.BeginDate, &sub.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(codes), &sub.Codes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// UpdateSubscription частично обновляет подписку пользователя и возвращает
// количество изменённых строк. Поля со значением nil не меняются.
func (s *Storage) UpdateSubscription(ctx context.Context, userID int, upd models.SubscriptionPatch) (int, error) {
	const op = "storage.UpdateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.IncludeSDK != nil {
		add("include_sdk", *upd.IncludeSDK)
	}
	if upd.IncludeMobile != nil {
		add("include_mobile", *upd.IncludeMobile)
	}
	if upd.MaxDevicesCount != nil {
		add("max_devices_count", *upd.MaxDevicesCount)
	}
	if upd.Codes != nil {
		codes, err := json.Marshal(*upd.Codes)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		add("codes", string(codes))
	}
	if upd.BeginDate != nil {
		add("begin_date", *upd.BeginDate)
	}
	if upd.Duration != nil {
		add("duration", *upd.Duration)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, userID)

	query := fmt.Sprintf("UPDATE subscriptions SET %s WHERE user_id = $%d",
		strings.Join(sets, ", "), len(args))
	result, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
