package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/models"
)

// DeviceTx транзакция регистрации устройства. Все чтения, на которых
// основано решение, и обе записи выполняются внутри одной транзакции;
// блокировка строки пользователя (SELECT ... FOR UPDATE) сериализует
// конкурентные регистрации для одного пользователя.
type DeviceTx struct {
	tx *sql.Tx
}

// BeginDeviceTx открывает транзакцию регистрации устройства.
func (s *Storage) BeginDeviceTx(ctx context.Context) (*DeviceTx, error) {
	const op = "storage.BeginDeviceTx"
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &DeviceTx{tx: tx}, nil
}

// LockUser читает пользователя с блокировкой его строки до конца транзакции.
func (t *DeviceTx) LockUser(ctx context.Context, userID int) (*models.User, error) {
	const op = "storage.DeviceTx.LockUser"

	query := `SELECT id, first_name, last_name, company_name, email, password_hash,
			      inn, current_devices_count
			  FROM users
			  WHERE id = $1
			  FOR UPDATE`
	u := &models.User{}
	var passwordHash, inn sql.NullString
	row := t.tx.QueryRowContext(ctx, query, userID)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.CompanyName, &u.Email,
		&passwordHash, &inn, &u.CurrentDevicesCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if inn.Valid {
		u.INN = &inn.String
	}
	return u, nil
}

// Subscription читает подписку пользователя внутри транзакции.
func (t *DeviceTx) Subscription(ctx context.Context, userID int) (*models.Subscription, error) {
	const op = "storage.DeviceTx.Subscription"

	query := `SELECT id, user_id, include_sdk, include_mobile, max_devices_count,
			      codes, begin_date, duration
			  FROM subscriptions
			  WHERE user_id = $1`
	var sub models.Subscription
	var codes string
	row := t.tx.QueryRowContext(ctx, query, userID)
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

// ProjectByAPIKey читает проект по паре (api_key, user_id): ключ должен
// принадлежать тому же пользователю, от чьего имени идёт запрос.
func (t *DeviceTx) ProjectByAPIKey(ctx context.Context, apiKey string, userID int) (*models.Project, error) {
	const op = "storage.DeviceTx.ProjectByAPIKey"

	query := `SELECT id, name, type, api_key, devices_count, user_id
			  FROM projects
			  WHERE api_key = $1 AND user_id = $2`
	var p models.Project
	row := t.tx.QueryRowContext(ctx, query, apiKey, userID)
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &p.APIKey,
		&p.DevicesCount, &p.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrProjectNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// IncrementDeviceCounters увеличивает счётчики устройств проекта и
// пользователя на единицу. Оба обновления — единое целое: либо
// применяются вместе при Commit, либо откатываются вместе.
func (t *DeviceTx) IncrementDeviceCounters(ctx context.Context, projectID string, userID int) error {
	const op = "storage.DeviceTx.IncrementDeviceCounters"

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET devices_count = devices_count + 1 WHERE id = $1`,
		projectID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE users SET current_devices_count = current_devices_count + 1 WHERE id = $1`,
		userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Commit фиксирует транзакцию.
func (t *DeviceTx) Commit() error {
	const op = "storage.DeviceTx.Commit"
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Rollback откатывает транзакцию. Безопасно вызывать после Commit.
func (t *DeviceTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
