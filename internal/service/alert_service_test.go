package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/farewatch/backend/internal/model"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
)

// MockAlertRepo for testing
type MockAlertRepo struct {
	mock.Mock
}

func (m *MockAlertRepo) List(ctx context.Context) ([]model.Alert, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Alert), args.Error(1)
}

func (m *MockAlertRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func (m *MockAlertRepo) Save(ctx context.Context, alert *model.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockAlertRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// dropDispatcher swallows notifications during service tests.
type dropDispatcher struct{}

func (dropDispatcher) Dispatch(context.Context, notify.Message) error { return nil }

func travelDate() time.Time {
	return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
}

func TestAlertService_Create(t *testing.T) {
	t.Parallel()

	repo := new(MockAlertRepo)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Alert")).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	alert, err := svc.Create(context.Background(), model.AlertInput{
		From:  "oak",
		To:    "dal",
		Date:  travelDate(),
		Price: 150,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, alert.ID)
	assert.Equal(t, "OAK", alert.From)
	assert.Equal(t, "DAL", alert.To)
	assert.True(t, alert.FetchingPrices, "first fetch is pending at creation")
	repo.AssertExpectations(t)
}

func TestAlertService_Update_SameSearchKeepsHistory(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	existing := &model.Alert{
		ID:            id,
		From:          "OAK",
		To:            "DAL",
		Date:          travelDate(),
		Kind:          model.KindSingle,
		FlightNumbers: "123",
		TargetPrice:   200,
		PriceHistory: model.PriceHistory{
			{Price: 180},
			{Price: 180},
			{Price: 160},
		},
	}

	repo := new(MockAlertRepo)
	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Alert")).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	// Same search, only the threshold moves.
	updated, err := svc.Update(context.Background(), id, model.AlertInput{
		From:          "oak",
		To:            "dal",
		Date:          travelDate(),
		FlightNumbers: "123",
		Price:         170,
	})
	require.NoError(t, err)

	assert.Equal(t, 170.0, updated.TargetPrice)
	require.Len(t, updated.PriceHistory, 3)
	assert.Equal(t, 160.0, updated.LatestPrice())
}

func TestAlertService_Update_ChangedSearchResetsHistory(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	existing := &model.Alert{
		ID:            id,
		From:          "OAK",
		To:            "DAL",
		Date:          travelDate(),
		Kind:          model.KindSingle,
		FlightNumbers: "123",
		TargetPrice:   200,
		PriceHistory:  model.PriceHistory{{Price: 180}},
	}

	repo := new(MockAlertRepo)
	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Alert")).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	// Different flight number: this is a different search.
	updated, err := svc.Update(context.Background(), id, model.AlertInput{
		From:          "OAK",
		To:            "DAL",
		Date:          travelDate(),
		FlightNumbers: "456",
		Price:         200,
	})
	require.NoError(t, err)

	assert.Empty(t, updated.PriceHistory)
	assert.True(t, updated.FetchingPrices)
	assert.Equal(t, id, updated.ID)
}

func TestAlertService_Update_ZeroPriceKeepsThreshold(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	existing := &model.Alert{
		ID:          id,
		From:        "OAK",
		To:          "DAL",
		Date:        travelDate(),
		Kind:        model.KindSingle,
		TargetPrice: 250,
	}

	repo := new(MockAlertRepo)
	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Alert")).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	updated, err := svc.Update(context.Background(), id, model.AlertInput{
		From: "OAK",
		To:   "DAL",
		Date: travelDate(),
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, updated.TargetPrice)
}

func TestAlertService_Update_NotFound(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := new(MockAlertRepo)
	repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	_, err := svc.Update(context.Background(), id, model.AlertInput{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAlertService_UpdateTargetPrice(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	existing := &model.Alert{
		ID:           id,
		From:         "OAK",
		To:           "DAL",
		Date:         travelDate(),
		TargetPrice:  200,
		PriceHistory: model.PriceHistory{{Price: 150}},
	}

	repo := new(MockAlertRepo)
	repo.On("GetByID", mock.Anything, id).Return(existing, nil)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*model.Alert")).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	updated, err := svc.UpdateTargetPrice(context.Background(), id, 145)
	require.NoError(t, err)

	assert.Equal(t, 145.0, updated.TargetPrice)
	// Only the threshold changes; the history is untouched.
	require.Len(t, updated.PriceHistory, 1)
}

func TestAlertService_Delete(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := new(MockAlertRepo)
	repo.On("Delete", mock.Anything, id).Return(nil)

	svc := NewAlertService(repo, dropDispatcher{}, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), id))
	repo.AssertExpectations(t)
}
