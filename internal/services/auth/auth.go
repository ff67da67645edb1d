// Package services содержит логику бизнес-уровня для работы с
// пользователями и аутентификацией: регистрация, вход по паролю,
// вход через Google OAuth и одноразовые refresh-токены.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/lib/jwt"
	"github.com/avoronkov/device-gate/internal/lib/password"
	"github.com/avoronkov/device-gate/internal/lib/sl"
	"github.com/avoronkov/device-gate/internal/models"
	"github.com/avoronkov/device-gate/internal/oauth"
)

// UserRepository описывает контракт для работы с пользователями и
// refresh-токенами в базе данных.
type UserRepository interface {
	// RegisterUser сохраняет нового пользователя и возвращает его ID.
	// Дубликат email возвращается как domain.ErrUserExists.
	RegisterUser(ctx context.Context, user models.User) (int, error)
	// GetUser возвращает пользователя по ID или domain.ErrUserNotFound.
	GetUser(ctx context.Context, userID int) (*models.User, error)
	// GetUserByEmail возвращает пользователя по email или domain.ErrUserNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser обновляет поля профиля, возвращает число изменённых строк.
	UpdateUser(ctx context.Context, userID int, upd models.DummyUserUpdate) (int, error)
	// DeleteUser удаляет пользователя, возвращает число удалённых строк.
	DeleteUser(ctx context.Context, userID int) (int, error)

	// CreateToken сохраняет refresh-токен.
	CreateToken(ctx context.Context, token models.Token) (int, error)
	// GetToken возвращает запись refresh-токена или domain.ErrTokenInvalid.
	GetToken(ctx context.Context, refreshToken string) (*models.Token, error)
	// DeleteToken удаляет refresh-токен, возвращает число удалённых строк.
	DeleteToken(ctx context.Context, refreshToken string) (int, error)
}

// OAuthProvider обменивает код авторизации на профиль пользователя.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.Profile, error)
}

// AuthService отвечает за регистрацию, авторизацию, OAuth-вход и
// обновление пары токенов.
type AuthService struct {
	users    UserRepository
	provider OAuthProvider
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, provider OAuthProvider, jwtMaker jwt.Maker, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		provider: provider,
		jwtMaker: jwtMaker,
		log:      log,
	}
}

// Register создает нового пользователя с хэшированием пароля.
func (s *AuthService) Register(ctx context.Context, req models.DummyRegister) (int, error) {
	hashed, err := password.GetHash(req.Password)
	if err != nil {
		return 0, err
	}
	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CompanyName:  req.CompanyName,
		Email:        req.Email,
		PasswordHash: &hashed,
	}
	id, err := s.users.RegisterUser(ctx, user)
	if err != nil {
		return 0, err
	}
	s.log.Info("registered new user", slog.Int("user_id", id))
	return id, nil
}

// Login проверяет пароль пользователя и возвращает пару токенов.
// Для OAuth-аккаунтов без пароля вход по паролю невозможен.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*models.TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := password.CompareHash(*user.PasswordHash, rawPassword); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.generateTokens(ctx, user)
}

// OAuthURL возвращает ссылку для перенаправления на страницу согласия Google.
func (s *AuthService) OAuthURL(state string) string {
	return s.provider.AuthURL(state)
}

// OAuthLogin обменивает код авторизации Google на пару токенов.
// Если пользователь с таким email ещё не зарегистрирован, он создаётся
// без пароля, имя разбирается из профиля.
func (s *AuthService) OAuthLogin(ctx context.Context, code string) (*models.TokenPair, error) {
	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, profile.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		firstName, lastName := splitName(profile.Name)
		newUser := models.User{
			FirstName:   firstName,
			LastName:    lastName,
			CompanyName: "OAuth Company",
			Email:       profile.Email,
		}
		id, err := s.users.RegisterUser(ctx, newUser)
		if err != nil {
			return nil, err
		}
		s.log.Info("registered new user via oauth", slog.Int("user_id", id))
		newUser.ID = id
		user = &newUser
	} else if err != nil {
		return nil, err
	}

	return s.generateTokens(ctx, user)
}

// Refresh обменивает одноразовый refresh-токен на новую пару токенов.
// Запись токена удаляется при обмене; просроченный или неизвестный
// токен — domain.ErrTokenInvalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	record, err := s.users.GetToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if time.Now().After(record.ExpiresAt) {
		if _, err := s.users.DeleteToken(ctx, refreshToken); err != nil {
			s.log.Warn("failed to delete expired token", sl.Err(err))
		}
		return nil, domain.ErrTokenInvalid
	}
	if _, err := s.users.DeleteToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	return s.generateTokens(ctx, user)
}

// GetUserInfo возвращает проекцию профиля пользователя.
func (s *AuthService) GetUserInfo(ctx context.Context, userID int) (*models.UserInfo, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserInfo{
		FirstName:           user.FirstName,
		LastName:            user.LastName,
		CompanyName:         user.CompanyName,
		Email:               user.Email,
		INN:                 user.INN,
		CurrentDevicesCount: user.CurrentDevicesCount,
	}, nil
}

// UpdateUserInfo частично обновляет профиль, возвращает число изменённых строк.
func (s *AuthService) UpdateUserInfo(ctx context.Context, userID int, upd models.DummyUserUpdate) (int, error) {
	rows, err := s.users.UpdateUser(ctx, userID, upd)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, domain.ErrUserNotFound
	}
	return rows, nil
}

// DeleteUser удаляет пользователя вместе с проектами, подпиской и токенами.
func (s *AuthService) DeleteUser(ctx context.Context, userID int) error {
	rows, err := s.users.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	s.log.Info("deleted user", slog.Int("user_id", userID))
	return nil
}

func (s *AuthService) generateTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "auth.generateTokens"
	accessToken, err := s.jwtMaker.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refreshToken, err := s.jwtMaker.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	record := models.Token{
		RefreshToken: refreshToken,
		UserID:       user.ID,
		ExpiresAt:    time.Now().Add(s.jwtMaker.RefreshTTL()),
	}
	if _, err := s.users.CreateToken(ctx, record); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", " "
	}
	if len(parts) == 1 {
		return parts[0], " "
	}
	return parts[0], strings.Join(parts[1:], " ")
}
