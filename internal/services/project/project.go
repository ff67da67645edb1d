// Package services содержит бизнес-логику управления проектами
// пользователя: создание, переименование, перевыпуск API-ключа
// и удаление.
package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/lib/apikey"
	"github.com/avoronkov/device-gate/internal/models"
)

// ProjectRepository определяет методы для работы с проектами в хранилище.
type ProjectRepository interface {
	// CreateProject вставляет новый проект.
	CreateProject(ctx context.Context, project models.Project) error
	// ListProjects возвращает все проекты пользователя.
	ListProjects(ctx context.Context, userID int) ([]*models.Project, error)
	// ReadProject возвращает проект пользователя или domain.ErrProjectNotFound.
	ReadProject(ctx context.Context, projectID string, userID int) (*models.Project, error)
	// RenameProject меняет название, возвращает число изменённых строк.
	RenameProject(ctx context.Context, projectID string, userID int, name string) (int, error)
	// UpdateProjectAPIKey записывает новый ключ, возвращает число изменённых строк.
	UpdateProjectAPIKey(ctx context.Context, projectID string, userID int, apiKey string) (int, error)
	// DeleteProject удаляет проект и уменьшает счётчик устройств владельца
	// в одной транзакции.
	DeleteProject(ctx context.Context, projectID string, userID int) error
}

// ProjectService реализует бизнес-логику работы с проектами.
type ProjectService struct {
	repo ProjectRepository
	log  *slog.Logger
}

// NewProjectService создает новый экземпляр ProjectService.
func NewProjectService(repo ProjectRepository, log *slog.Logger) *ProjectService {
	return &ProjectService{
		repo: repo,
		log:  log,
	}
}

// Create создаёт проект с новым API-ключом, счётчик устройств равен нулю.
func (s *ProjectService) Create(ctx context.Context, userID int, req models.DummyProject) (*models.Project, error) {
	key, err := apikey.Generate()
	if err != nil {
		return nil, err
	}
	project := models.Project{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Type:         req.Type,
		APIKey:       key,
		DevicesCount: 0,
		UserID:       userID,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	s.log.Info("created new project",
		slog.String("project_id", project.ID), slog.Int("user_id", userID))
	return &project, nil
}

// List возвращает все проекты пользователя.
func (s *ProjectService) List(ctx context.Context, userID int) ([]*models.Project, error) {
	return s.repo.ListProjects(ctx, userID)
}

// Read возвращает проект пользователя по ID.
func (s *ProjectService) Read(ctx context.Context, projectID string, userID int) (*models.Project, error) {
	return s.repo.ReadProject(ctx, projectID, userID)
}

// Rename меняет название проекта.
func (s *ProjectService) Rename(ctx context.Context, projectID string, userID int, name string) error {
	rows, err := s.repo.RenameProject(ctx, projectID, userID, name)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// RegenerateAPIKey выпускает новый API-ключ проекта и возвращает его.
// Старый ключ перестаёт действовать: устройства по нему больше не
// регистрируются.
func (s *ProjectService) RegenerateAPIKey(ctx context.Context, projectID string, userID int) (string, error) {
	key, err := apikey.Generate()
	if err != nil {
		return "", err
	}
	rows, err := s.repo.UpdateProjectAPIKey(ctx, projectID, userID, key)
	if err != nil {
		return "", err
	}
	if rows == 0 {
		return "", domain.ErrProjectNotFound
	}
	s.log.Info("regenerated api key", slog.String("project_id", projectID))
	return key, nil
}

// Delete удаляет проект. Счётчик устройств владельца уменьшается на
// число устройств проекта в той же транзакции, поэтому инвариант
// "счётчик пользователя равен сумме счётчиков его проектов" сохраняется.
func (s *ProjectService) Delete(ctx context.Context, projectID string, userID int) error {
	if err := s.repo.DeleteProject(ctx, projectID, userID); err != nil {
		return err
	}
	s.log.Info("deleted project",
		slog.String("project_id", projectID), slog.Int("user_id", userID))
	return nil
}
