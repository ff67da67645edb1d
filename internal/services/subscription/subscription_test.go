package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	args := m.Called(ctx, sub)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) GetSubscription(ctx context.Context, userID int) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) UpdateSubscription(ctx context.Context, userID int, upd models.SubscriptionPatch) (int, error) {
	args := m.Called(ctx, userID, upd)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) BeginDeviceTx(ctx context.Context) (DeviceTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(DeviceTx), args.Error(1)
}

type TxMock struct{ mock.Mock }

func (m *TxMock) LockUser(ctx context.Context, userID int) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *TxMock) Subscription(ctx context.Context, userID int) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *TxMock) ProjectByAPIKey(ctx context.Context, apiKey string, userID int) (*models.Project, error) {
	args := m.Called(ctx, apiKey, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *TxMock) IncrementDeviceCounters(ctx context.Context, projectID string, userID int) error {
	return m.Called(ctx, projectID, userID).Error(0)
}

func (m *TxMock) Commit() error   { return m.Called().Error(0) }
func (m *TxMock) Rollback() error { return m.Called().Error(0) }

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}

func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

type EventsMock struct{ mock.Mock }

func (m *EventsMock) Publish(message any) error {
	return m.Called(message).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func activeSubscription(userID, maxDevices int) *models.Subscription {
	return &models.Subscription{
		ID:              1,
		UserID:          userID,
		IncludeSDK:      true,
		MaxDevicesCount: maxDevices,
		Codes:           []string{},
		BeginDate:       time.Now().UTC().AddDate(0, 0, -1),
		Duration:        30,
	}
}

func expiredSubscription(userID int) *models.Subscription {
	return &models.Subscription{
		ID:              1,
		UserID:          userID,
		MaxDevicesCount: 5,
		Codes:           []string{},
		BeginDate:       time.Now().UTC().AddDate(0, 0, -60),
		Duration:        30,
	}
}

func TestSubscriptionService_Create(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, c *CacheMock)
		req        models.DummySubscription
		wantID     int
		wantErr    error
	}{
		{
			name: "успешное создание",
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("GetSubscription", mock.Anything, 1).
					Return(nil, domain.ErrSubscriptionNotFound).Once()
				r.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(s models.Subscription) bool {
					return s.UserID == 1 && s.MaxDevicesCount == 5 && s.Duration == 365
				})).Return(42, nil).Once()
				c.On("Invalidate", "subscription:user:1").Return(nil).Once()
			},
			req: models.DummySubscription{
				IncludeSDK:      true,
				MaxDevicesCount: 5,
				BeginDate:       "01-01-2024",
				Duration:        365,
			},
			wantID: 42,
		},
		{
			name: "подписка уже существует",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetSubscription", mock.Anything, 1).
					Return(activeSubscription(1, 5), nil).Once()
			},
			req: models.DummySubscription{
				MaxDevicesCount: 5,
				BeginDate:       "01-01-2024",
				Duration:        365,
			},
			wantErr: domain.ErrSubscriptionExists,
		},
		{
			name: "гонка на уникальном ограничении",
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("GetSubscription", mock.Anything, 1).
					Return(nil, domain.ErrSubscriptionNotFound).Once()
				r.On("CreateSubscription", mock.Anything, mock.Anything).
					Return(0, domain.ErrSubscriptionExists).Once()
			},
			req: models.DummySubscription{
				MaxDevicesCount: 5,
				BeginDate:       "01-01-2024",
				Duration:        365,
			},
			wantErr: domain.ErrSubscriptionExists,
		},
		{
			name:       "некорректная дата начала",
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			req: models.DummySubscription{
				MaxDevicesCount: 5,
				BeginDate:       "2024-01-01",
				Duration:        365,
			},
			wantErr: errors.New("invalid begin date"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			tt.setupMocks(repo, cache)

			svc := NewSubscriptionService(repo, cache, nil, newNoopLogger())
			id, err := svc.Create(context.Background(), 1, tt.req)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, domain.ErrSubscriptionExists) {
					assert.ErrorIs(t, err, domain.ErrSubscriptionExists)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestSubscriptionService_Read(t *testing.T) {
	t.Run("промах кеша и чтение из хранилища", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)
		sub := activeSubscription(1, 5)

		cache.On("Get", "subscription:user:1", mock.Anything).Return(false, nil).Once()
		repo.On("GetSubscription", mock.Anything, 1).Return(sub, nil).Once()
		cache.On("Set", "subscription:user:1", mock.Anything, time.Hour).Return(nil).Once()

		svc := NewSubscriptionService(repo, cache, nil, newNoopLogger())
		info, err := svc.Read(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, sub.MaxDevicesCount, info.MaxDevicesCount)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("подписка не найдена", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)

		cache.On("Get", "subscription:user:1", mock.Anything).Return(false, nil).Once()
		repo.On("GetSubscription", mock.Anything, 1).
			Return(nil, domain.ErrSubscriptionNotFound).Once()

		svc := NewSubscriptionService(repo, cache, nil, newNoopLogger())
		_, err := svc.Read(context.Background(), 1)

		assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	})
}

func TestSubscriptionService_Update(t *testing.T) {
	t.Run("обновление существующей подписки", func(t *testing.T) {
		repo := new(RepoMock)
		cache := new(CacheMock)
		maxDevices := 10

		repo.On("UpdateSubscription", mock.Anything, 1, mock.MatchedBy(func(p models.SubscriptionPatch) bool {
			return p.MaxDevicesCount != nil && *p.MaxDevicesCount == 10
		})).Return(1, nil).Once()
		cache.On("Invalidate", "subscription:user:1").Return(nil).Once()

		svc := NewSubscriptionService(repo, cache, nil, newNoopLogger())
		rows, err := svc.Update(context.Background(), 1,
			models.DummySubscriptionUpdate{MaxDevicesCount: &maxDevices})

		require.NoError(t, err)
		assert.Equal(t, 1, rows)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("нет подписки для обновления", func(t *testing.T) {
		repo := new(RepoMock)
		maxDevices := 10

		repo.On("UpdateSubscription", mock.Anything, 1, mock.Anything).Return(0, nil).Once()

		svc := NewSubscriptionService(repo, new(CacheMock), nil, newNoopLogger())
		_, err := svc.Update(context.Background(), 1,
			models.DummySubscriptionUpdate{MaxDevicesCount: &maxDevices})

		assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	})
}

func TestSubscriptionService_IsActive(t *testing.T) {
	tests := []struct {
		name    string
		sub     *models.Subscription
		subErr  error
		want    bool
		wantErr error
	}{
		{name: "подписка активна", sub: activeSubscription(1, 5), want: true},
		{name: "подписка истекла", sub: expiredSubscription(1), want: false},
		{name: "подписки нет", subErr: domain.ErrSubscriptionNotFound, wantErr: domain.ErrSubscriptionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			repo.On("GetSubscription", mock.Anything, 1).Return(tt.sub, tt.subErr).Once()

			svc := NewSubscriptionService(repo, new(CacheMock), nil, newNoopLogger())
			active, err := svc.IsActive(context.Background(), 1)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, active)
		})
	}
}

func TestSubscriptionService_DaysRemaining(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscription", mock.Anything, 1).
		Return(expiredSubscription(1), nil).Once()

	svc := NewSubscriptionService(repo, new(CacheMock), nil, newNoopLogger())
	daysLeft, err := svc.DaysRemaining(context.Background(), 1)

	require.NoError(t, err)
	assert.Negative(t, daysLeft, "expired subscription should report negative days")
}

func TestSubscriptionService_AddDevice(t *testing.T) {
	const apiKey = "aaaabbbbccccddddaaaabbbbccccddddaaaabbbbccccddddaaaabbbbccccdddd"
	user := &models.User{ID: 1, CurrentDevicesCount: 2}
	project := &models.Project{ID: "p-1", Type: models.ProjectTypeSDK, APIKey: apiKey, UserID: 1}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, tx *TxMock, ev *EventsMock)
		wantErr    error
	}{
		{
			name: "успешная регистрация",
			setupMocks: func(r *RepoMock, tx *TxMock, ev *EventsMock) {
				r.On("BeginDeviceTx", mock.Anything).Return(tx, nil).Once()
				tx.On("LockUser", mock.Anything, 1).Return(user, nil).Once()
				tx.On("Subscription", mock.Anything, 1).Return(activeSubscription(1, 5), nil).Once()
				tx.On("ProjectByAPIKey", mock.Anything, apiKey, 1).Return(project, nil).Once()
				tx.On("IncrementDeviceCounters", mock.Anything, "p-1", 1).Return(nil).Once()
				tx.On("Commit").Return(nil).Once()
				tx.On("Rollback").Return(nil).Once()
				ev.On("Publish", mock.MatchedBy(func(e any) bool {
					event, ok := e.(models.DeviceRegisteredEvent)
					return ok && event.UserID == 1 && event.ProjectID == "p-1"
				})).Return(nil).Once()
			},
		},
		{
			name: "пользователь не найден",
			setupMocks: func(r *RepoMock, tx *TxMock, _ *EventsMock) {
				r.On("BeginDeviceTx", mock.Anything).Return(tx, nil).Once()
				tx.On("LockUser", mock.Anything, 1).Return(nil, domain.ErrUserNotFound).Once()
				tx.On("Rollback").Return(nil).Once()
			},
			wantErr: domain.ErrUserNotFound,
		},
		{
			name: "подписка истекла",
			setupMocks: func(r *RepoMock, tx *TxMock, _ *EventsMock) {
				r.On("BeginDeviceTx", mock.Anything).Return(tx, nil).Once()
				tx.On("LockUser", mock.Anything, 1).Return(user, nil).Once()
				tx.On("Subscription", mock.Anything, 1).Return(expiredSubscription(1), nil).Once()
				tx.On("Rollback").Return(nil).Once()
			},
			wantErr: domain.ErrSubscriptionInactive,
		},
		{
			name: "проект по ключу не найден",
			setupMocks: func(r *RepoMock, tx *TxMock, _ *EventsMock) {
				r.On("BeginDeviceTx", mock.Anything).Return(tx, nil).Once()
				tx.On("LockUser", mock.Anything, 1).Return(user, nil).Once()
				tx.On("Subscription", mock.Anything, 1).Return(activeSubscription(1, 5), nil).Once()
				tx.On("ProjectByAPIKey", mock.Anything, apiKey, 1).
					Return(nil, domain.ErrProjectNotFound).Once()
				tx.On("Rollback").Return(nil).Once()
			},
			wantErr: domain.ErrProjectNotFound,
		},
		{
			name: "лимит устройств достигнут",
			setupMocks: func(r *RepoMock, tx *TxMock, _ *EventsMock) {
				full := &models.User{ID: 1, CurrentDevicesCount: 5}
				r.On("BeginDeviceTx", mock.Anything).Return(tx, nil).Once()
				tx.On("LockUser", mock.Anything, 1).Return(full, nil).Once()
				tx.On("Subscription", mock.Anything, 1).Return(activeSubscription(1, 5), nil).Once()
				tx.On("ProjectByAPIKey", mock.Anything, apiKey, 1).Return(project, nil).Once()
				tx.On("Rollback").Return(nil).Once()
			},
			wantErr: domain.ErrDeviceLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tx := new(TxMock)
			events := new(EventsMock)
			tt.setupMocks(repo, tx, events)

			svc := NewSubscriptionService(repo, new(CacheMock), events, newNoopLogger())
			err := svc.AddDevice(context.Background(), 1, apiKey)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				tx.AssertNotCalled(t, "IncrementDeviceCounters", mock.Anything, mock.Anything, mock.Anything)
				tx.AssertNotCalled(t, "Commit")
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
			tx.AssertExpectations(t)
			events.AssertExpectations(t)
		})
	}
}

// fakeStore моделирует хранилище с блокировкой строки пользователя:
// мьютекс удерживается от LockUser до Commit или Rollback, как
// SELECT ... FOR UPDATE в базе.
type fakeStore struct {
	mu      sync.Mutex
	user    models.User
	sub     models.Subscription
	project models.Project
}

func (s *fakeStore) CreateSubscription(_ context.Context, _ models.Subscription) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeStore) GetSubscription(_ context.Context, _ int) (*models.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) UpdateSubscription(_ context.Context, _ int, _ models.SubscriptionPatch) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeStore) BeginDeviceTx(_ context.Context) (DeviceTx, error) {
	return &fakeTx{store: s}, nil
}

type fakeTx struct {
	store   *fakeStore
	locked  bool
	pending bool
}

func (t *fakeTx) LockUser(_ context.Context, _ int) (*models.User, error) {
	t.store.mu.Lock()
	t.locked = true
	u := t.store.user
	return &u, nil
}

func (t *fakeTx) Subscription(_ context.Context, _ int) (*models.Subscription, error) {
	sub := t.store.sub
	return &sub, nil
}

func (t *fakeTx) ProjectByAPIKey(_ context.Context, apiKey string, _ int) (*models.Project, error) {
	if apiKey != t.store.project.APIKey {
		return nil, domain.ErrProjectNotFound
	}
	p := t.store.project
	return &p, nil
}

func (t *fakeTx) IncrementDeviceCounters(_ context.Context, _ string, _ int) error {
	t.pending = true
	return nil
}

func (t *fakeTx) Commit() error {
	if t.pending {
		t.store.project.DevicesCount++
		t.store.user.CurrentDevicesCount++
		t.pending = false
	}
	t.release()
	return nil
}

func (t *fakeTx) Rollback() error {
	t.pending = false
	t.release()
	return nil
}

func (t *fakeTx) release() {
	if t.locked {
		t.locked = false
		t.store.mu.Unlock()
	}
}

func TestSubscriptionService_AddDeviceConcurrent(t *testing.T) {
	const (
		apiKey     = "aaaabbbbccccddddaaaabbbbccccddddaaaabbbbccccddddaaaabbbbccccdddd"
		maxDevices = 5
		callers    = 20
	)

	store := &fakeStore{
		user:    models.User{ID: 1},
		sub:     *activeSubscription(1, maxDevices),
		project: models.Project{ID: "p-1", Type: models.ProjectTypeSDK, APIKey: apiKey, UserID: 1},
	}
	svc := NewSubscriptionService(store, new(CacheMock), nil, newNoopLogger())

	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.AddDevice(context.Background(), 1, apiKey)
		}()
	}
	wg.Wait()
	close(results)

	var successes, limitErrors int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrDeviceLimitReached):
			limitErrors++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, maxDevices, successes)
	assert.Equal(t, callers-maxDevices, limitErrors)
	assert.Equal(t, maxDevices, store.user.CurrentDevicesCount)
	assert.Equal(t, maxDevices, store.project.DevicesCount)
}
