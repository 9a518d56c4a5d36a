package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/dto"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, n *entity.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockRepo) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]entity.Notification, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	items, _ := args.Get(0).([]entity.Notification)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func TestCreateNotificationWithoutRedis(t *testing.T) {
	repo := &mockRepo{}
	n := &entity.Notification{UserID: uuid.New(), Type: entity.NotificationXPReceived}
	repo.On("Create", mock.Anything, n).Return(nil).Once()

	svc := NewNotificationService(repo, nil)
	require.NoError(t, svc.CreateNotification(context.Background(), n))
	repo.AssertExpectations(t)
}

func TestCreateNotificationReturnsStoreError(t *testing.T) {
	repo := &mockRepo{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	svc := NewNotificationService(repo, nil)
	err := svc.CreateNotification(context.Background(), &entity.Notification{UserID: uuid.New()})
	assert.EqualError(t, err, "db down")
}

func TestNotifyLevelUp(t *testing.T) {
	user := testutil.NewUser(1)

	t.Run("same level is ignored", func(t *testing.T) {
		repo := &mockRepo{}
		svc := NewNotificationService(repo, nil)

		user.Level = 3
		svc.NotifyLevelUp(context.Background(), user, 3)
		svc.NotifyLevelUp(context.Background(), user, 4)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("higher level is stored", func(t *testing.T) {
		repo := &mockRepo{}
		var stored *entity.Notification
		repo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*entity.Notification) }).
			Return(nil).Once()
		svc := NewNotificationService(repo, nil)

		user.Level, user.XP = 5, 1650
		svc.NotifyLevelUp(context.Background(), user, 1)

		require.NotNil(t, stored)
		assert.Equal(t, user.ID, stored.UserID)
		assert.Equal(t, entity.NotificationLevelUp, stored.Type)
		assert.Equal(t, "You reached level 5.", stored.Message)

		var data map[string]int
		require.NoError(t, json.Unmarshal(stored.Data, &data))
		assert.Equal(t, map[string]int{"previous_level": 1, "level": 5, "xp": 1650}, data)
	})
}

func TestNotifySwallowsStoreErrors(t *testing.T) {
	repo := &mockRepo{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	svc := NewNotificationService(repo, nil)

	assert.NotPanics(t, func() {
		svc.NotifyXPReceived(context.Background(), uuid.New(), "alice", 25)
		svc.NotifyApplicationReviewed(context.Background(), uuid.New(), entity.ApplicationApproved)
	})
	repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestGetNotificationsNeverReturnsNilData(t *testing.T) {
	repo := &mockRepo{}
	userID := uuid.New()
	repo.On("GetByUserID", mock.Anything, userID, 20, 0).Return(nil, int64(0), nil).Once()
	svc := NewNotificationService(repo, nil)

	page, err := svc.GetNotifications(context.Background(), userID, dto.PageQuery{})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, int64(0), page.Meta.TotalItems)
}
