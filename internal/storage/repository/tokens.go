package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/models"
)

// CreateToken сохраняет refresh-токен пользователя.
func (s *Storage) CreateToken(ctx context.Context, token models.Token) (int, error) {
	const op = "storage.CreateToken"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int
	query := `INSERT INTO tokens (refresh_token, user_id, expires_at)
			  VALUES ($1, $2, $3)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query,
		token.RefreshToken, token.UserID, token.ExpiresAt).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetToken возвращает запись refresh-токена по его значению.
func (s *Storage) GetToken(ctx context.Context, refreshToken string) (*models.Token, error) {
	const op = "storage.GetToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, refresh_token, user_id, expires_at
			  FROM tokens
			  WHERE refresh_token = $1`
	t := &models.Token{}
	row := s.DB.QueryRowContext(ctx, query, refreshToken)
	if err := row.Scan(&t.ID, &t.RefreshToken, &t.UserID, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// DeleteToken удаляет refresh-токен. Токен одноразовый, удаление
// выполняется при каждом обмене.
func (s *Storage) DeleteToken(ctx context.Context, refreshToken string) (int, error) {
	const op = "storage.DeleteToken"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM tokens WHERE refresh_token = $1`
	result, err := s.DB.ExecContext(ctx, query, refreshToken)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
