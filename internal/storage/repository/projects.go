package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/models"
)

// CreateProject вставляет новый проект.
func (s *Storage) CreateProject(ctx context.Context, project models.Project) error {
	const op = "storage.CreateProject"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO projects (id, name, type, api_key, devices_count, user_id)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.DB.ExecContext(ctx, query,
		project.ID, project.Name, project.Type, project.APIKey,
		project.DevicesCount, project.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListProjects возвращает все проекты пользователя.
func (s *Storage) ListProjects(ctx context.Context, userID int) ([]*models.Project, error) {
	const op = "storage.ListProjects"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, type, api_key, devices_count, user_id
			  FROM projects
			  WHERE user_id = $1
			  ORDER BY name`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Project
	for rows.Next() {
		var item models.Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Type, &item.APIKey,
			&item.DevicesCount, &item.UserID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ReadProject возвращает проект пользователя по ID.
func (s *Storage) ReadProject(ctx context.Context, projectID string, userID int) (*models.Project, error) {
	const op = "storage.ReadProject"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, type, api_key, devices_count, user_id
			  FROM projects
			  WHERE id = $1 AND user_id = $2`
	var p models.Project
	row := s.DB.QueryRowContext(ctx, query, projectID, userID)
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &p.APIKey,
		&p.DevicesCount, &p.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrProjectNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// RenameProject меняет название проекта и возвращает количество изменённых строк.
func (s *Storage) RenameProject(ctx context.Context, projectID string, userID int, name string) (int, error) {
	const op = "storage.RenameProject"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE projects SET name = $1 WHERE id = $2 AND user_id = $3`
	result, err := s.DB.ExecContext(ctx, query, name, projectID, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpdateProjectAPIKey записывает новый API-ключ проекта и возвращает
// количество изменённых строк.
func (s *Storage) UpdateProjectAPIKey(ctx context.Context, projectID string, userID int, apiKey string) (int, error) {
	const op = "storage.UpdateProjectAPIKey"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE projects SET api_key = $1 WHERE id = $2 AND user_id = $3`
	result, err := s.DB.ExecContext(ctx, query, apiKey, projectID, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeleteProject удаляет проект и уменьшает счётчик устройств владельца
// на число устройств проекта. Обе записи меняются в одной транзакции,
// блокировка строки пользователя сериализует операцию с регистрацией
// устройств.
func (s *Storage) DeleteProject(ctx context.Context, projectID string, userID int) error {
	const op = "storage.DeleteProject"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var lockedID int
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&lockedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, domain.ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var devicesCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT devices_count FROM projects WHERE id = $1 AND user_id = $2`,
		projectID, userID).Scan(&devicesCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, domain.ErrProjectNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET current_devices_count = current_devices_count - $1 WHERE id = $2`,
		devicesCount, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1 AND user_id = $2`, projectID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
