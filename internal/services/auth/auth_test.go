package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/lib/jwt"
	"github.com/avoronkov/device-gate/internal/lib/password"
	"github.com/avoronkov/device-gate/internal/models"
	"github.com/avoronkov/device-gate/internal/oauth"
)

type UsersMock struct{ mock.Mock }

func (m *UsersMock) RegisterUser(ctx context.Context, user models.User) (int, error) {
	args := m.Called(ctx, user)
	return args.Int(0), args.Error(1)
}

func (m *UsersMock) GetUser(ctx context.Context, userID int) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UsersMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UsersMock) UpdateUser(ctx context.Context, userID int, upd models.DummyUserUpdate) (int, error) {
	args := m.Called(ctx, userID, upd)
	return args.Int(0), args.Error(1)
}

func (m *UsersMock) DeleteUser(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *UsersMock) CreateToken(ctx context.Context, token models.Token) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}

func (m *UsersMock) GetToken(ctx context.Context, refreshToken string) (*models.Token, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Token), args.Error(1)
}

func (m *UsersMock) DeleteToken(ctx context.Context, refreshToken string) (int, error) {
	args := m.Called(ctx, refreshToken)
	return args.Int(0), args.Error(1)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *ProviderMock) Exchange(ctx context.Context, code string) (*oauth.Profile, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.Profile), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestMaker() jwt.Maker {
	return jwt.NewJWTMaker("test-secret", time.Hour, 24*time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	t.Run("успешная регистрация", func(t *testing.T) {
		users := new(UsersMock)
		users.On("RegisterUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "user@example.com" &&
				u.PasswordHash != nil && *u.PasswordHash != "secret-password"
		})).Return(7, nil).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		id, err := svc.Register(context.Background(), models.DummyRegister{
			FirstName:   "Ivan",
			LastName:    "Petrov",
			CompanyName: "Acme",
			Email:       "user@example.com",
			Password:    "secret-password",
		})

		require.NoError(t, err)
		assert.Equal(t, 7, id)
		users.AssertExpectations(t)
	})

	t.Run("email уже занят", func(t *testing.T) {
		users := new(UsersMock)
		users.On("RegisterUser", mock.Anything, mock.Anything).
			Return(0, domain.ErrUserExists).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		_, err := svc.Register(context.Background(), models.DummyRegister{
			FirstName:   "Ivan",
			LastName:    "Petrov",
			CompanyName: "Acme",
			Email:       "user@example.com",
			Password:    "secret-password",
		})

		assert.ErrorIs(t, err, domain.ErrUserExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	hash, err := password.GetHash("secret-password")
	require.NoError(t, err)

	tests := []struct {
		name       string
		setupMocks func(u *UsersMock)
		password   string
		wantErr    error
	}{
		{
			name: "успешный вход",
			setupMocks: func(u *UsersMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{ID: 1, Email: "user@example.com", PasswordHash: &hash}, nil).Once()
				u.On("CreateToken", mock.Anything, mock.Anything).Return(1, nil).Once()
			},
			password: "secret-password",
		},
		{
			name: "неверный пароль",
			setupMocks: func(u *UsersMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{ID: 1, Email: "user@example.com", PasswordHash: &hash}, nil).Once()
			},
			password: "wrong-password",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name: "пользователь не найден",
			setupMocks: func(u *UsersMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(nil, domain.ErrUserNotFound).Once()
			},
			password: "secret-password",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name: "oauth аккаунт без пароля",
			setupMocks: func(u *UsersMock) {
				u.On("GetUserByEmail", mock.Anything, "user@example.com").
					Return(&models.User{ID: 1, Email: "user@example.com"}, nil).Once()
			},
			password: "secret-password",
			wantErr:  domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UsersMock)
			tt.setupMocks(users)

			svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
			pair, err := svc.Login(context.Background(), "user@example.com", tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, pair.AccessToken)
			assert.NotEmpty(t, pair.RefreshToken)
			users.AssertExpectations(t)
		})
	}
}

func TestAuthService_OAuthLogin(t *testing.T) {
	t.Run("новый пользователь создаётся без пароля", func(t *testing.T) {
		users := new(UsersMock)
		provider := new(ProviderMock)

		provider.On("Exchange", mock.Anything, "auth-code").
			Return(&oauth.Profile{ID: "g-1", Email: "new@example.com", Name: "Ivan Petrov"}, nil).Once()
		users.On("GetUserByEmail", mock.Anything, "new@example.com").
			Return(nil, domain.ErrUserNotFound).Once()
		users.On("RegisterUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "new@example.com" && u.PasswordHash == nil &&
				u.FirstName == "Ivan" && u.LastName == "Petrov"
		})).Return(9, nil).Once()
		users.On("CreateToken", mock.Anything, mock.Anything).Return(1, nil).Once()

		svc := NewAuthService(users, provider, newTestMaker(), newNoopLogger())
		pair, err := svc.OAuthLogin(context.Background(), "auth-code")

		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		users.AssertExpectations(t)
		provider.AssertExpectations(t)
	})

	t.Run("существующий пользователь входит без регистрации", func(t *testing.T) {
		users := new(UsersMock)
		provider := new(ProviderMock)

		provider.On("Exchange", mock.Anything, "auth-code").
			Return(&oauth.Profile{ID: "g-1", Email: "old@example.com", Name: "Ivan"}, nil).Once()
		users.On("GetUserByEmail", mock.Anything, "old@example.com").
			Return(&models.User{ID: 3, Email: "old@example.com"}, nil).Once()
		users.On("CreateToken", mock.Anything, mock.Anything).Return(1, nil).Once()

		svc := NewAuthService(users, provider, newTestMaker(), newNoopLogger())
		_, err := svc.OAuthLogin(context.Background(), "auth-code")

		require.NoError(t, err)
		users.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	t.Run("успешный обмен удаляет старый токен", func(t *testing.T) {
		users := new(UsersMock)
		users.On("GetToken", mock.Anything, "old-refresh").
			Return(&models.Token{RefreshToken: "old-refresh", UserID: 1,
				ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()
		users.On("DeleteToken", mock.Anything, "old-refresh").Return(1, nil).Once()
		users.On("GetUser", mock.Anything, 1).
			Return(&models.User{ID: 1, Email: "user@example.com"}, nil).Once()
		users.On("CreateToken", mock.Anything, mock.Anything).Return(2, nil).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		pair, err := svc.Refresh(context.Background(), "old-refresh")

		require.NoError(t, err)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.NotEqual(t, "old-refresh", pair.RefreshToken)
		users.AssertExpectations(t)
	})

	t.Run("просроченный токен отклоняется", func(t *testing.T) {
		users := new(UsersMock)
		users.On("GetToken", mock.Anything, "expired-refresh").
			Return(&models.Token{RefreshToken: "expired-refresh", UserID: 1,
				ExpiresAt: time.Now().Add(-time.Hour)}, nil).Once()
		users.On("DeleteToken", mock.Anything, "expired-refresh").Return(1, nil).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		_, err := svc.Refresh(context.Background(), "expired-refresh")

		assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	})

	t.Run("неизвестный токен отклоняется", func(t *testing.T) {
		users := new(UsersMock)
		users.On("GetToken", mock.Anything, "unknown").
			Return(nil, domain.ErrTokenInvalid).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		_, err := svc.Refresh(context.Background(), "unknown")

		assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	})
}

func TestAuthService_UpdateUserInfo(t *testing.T) {
	users := new(UsersMock)
	name := "Pyotr"
	users.On("UpdateUser", mock.Anything, 1, mock.Anything).Return(0, nil).Once()

	svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
	_, err := svc.UpdateUserInfo(context.Background(), 1, models.DummyUserUpdate{FirstName: &name})

	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAuthService_DeleteUser(t *testing.T) {
	t.Run("успешное удаление", func(t *testing.T) {
		users := new(UsersMock)
		users.On("DeleteUser", mock.Anything, 1).Return(1, nil).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		assert.NoError(t, svc.DeleteUser(context.Background(), 1))
	})

	t.Run("пользователь не найден", func(t *testing.T) {
		users := new(UsersMock)
		users.On("DeleteUser", mock.Anything, 1).Return(0, nil).Once()

		svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
		assert.ErrorIs(t, svc.DeleteUser(context.Background(), 1), domain.ErrUserNotFound)
	})
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name      string
		full      string
		wantFirst string
		wantLast  string
	}{
		{name: "имя и фамилия", full: "Ivan Petrov", wantFirst: "Ivan", wantLast: "Petrov"},
		{name: "только имя", full: "Ivan", wantFirst: "Ivan", wantLast: " "},
		{name: "пустое имя", full: "", wantFirst: "", wantLast: " "},
		{name: "составная фамилия", full: "Anna Maria van Dijk", wantFirst: "Anna", wantLast: "Maria van Dijk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := splitName(tt.full)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantLast, last)
		})
	}
}

func TestAuthService_GetUserInfo(t *testing.T) {
	users := new(UsersMock)
	inn := "1234567890"
	users.On("GetUser", mock.Anything, 1).Return(&models.User{
		ID:                  1,
		FirstName:           "Ivan",
		LastName:            "Petrov",
		CompanyName:         "Acme",
		Email:               "user@example.com",
		INN:                 &inn,
		CurrentDevicesCount: 3,
	}, nil).Once()

	svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
	info, err := svc.GetUserInfo(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Ivan", info.FirstName)
	assert.Equal(t, 3, info.CurrentDevicesCount)
	require.NotNil(t, info.INN)
	assert.Equal(t, inn, *info.INN)
}

func TestAuthService_LoginStorageError(t *testing.T) {
	users := new(UsersMock)
	users.On("GetUserByEmail", mock.Anything, "user@example.com").
		Return(nil, errors.New("db down")).Once()

	svc := NewAuthService(users, nil, newTestMaker(), newNoopLogger())
	_, err := svc.Login(context.Background(), "user@example.com", "x")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}
