// Package service provides business logic for managing fare alerts.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farewatch/backend/internal/model"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
)

// Checker prices a single alert on demand. The monitor implements it;
// tests substitute fakes. A nil checker skips the immediate first fetch.
type Checker interface {
	CheckAlert(ctx context.Context, alert *model.Alert) error
}

// firstCheckTimeout bounds the fetch kicked off right after creation.
const firstCheckTimeout = 5 * time.Minute

// AlertService handles alert CRUD plus the signature/reset rule applied
// on updates.
type AlertService struct {
	repo       repository.AlertRepository
	dispatcher notify.Dispatcher
	checker    Checker
	logger     *slog.Logger
}

// NewAlertService creates an AlertService.
func NewAlertService(repo repository.AlertRepository, dispatcher notify.Dispatcher, checker Checker, logger *slog.Logger) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = notify.NewLogDispatcher(logger)
	}
	return &AlertService{
		repo:       repo,
		dispatcher: dispatcher,
		checker:    checker,
		logger:     logger,
	}
}

// Create normalizes raw input into a new alert, persists it, sends the
// creation confirmation and kicks off an immediate first price check.
func (s *AlertService) Create(ctx context.Context, in model.AlertInput) (*model.Alert, error) {
	alert := model.NewAlert(in)
	alert.ID = uuid.New()
	alert.FetchingPrices = true

	if err := s.repo.Save(ctx, &alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	for _, msg := range notify.CreatedMessages(alert) {
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.logger.Error("Creation notification dispatch failed",
				slog.String("alert_id", alert.ID.String()),
				slog.String("channel", string(msg.Channel)),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.checker != nil {
		go s.runFirstCheck(alert)
	}

	return &alert, nil
}

// runFirstCheck prices a freshly created alert in the background so the
// UI has a data point before the next scheduled pass.
func (s *AlertService) runFirstCheck(alert model.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), firstCheckTimeout)
	defer cancel()

	if err := s.checker.CheckAlert(ctx, &alert); err != nil {
		s.logger.Error("First price check failed",
			slog.String("alert_id", alert.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns one alert by id.
func (s *AlertService) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all alerts, soonest travel date first.
func (s *AlertService) List(ctx context.Context) ([]model.Alert, error) {
	return s.repo.List(ctx)
}

// Update re-normalizes the alert from raw input. When the normalized
// search signature differs from the stored one, the price history is
// reset: samples from an unrelated search must not pollute the new one.
// An unchanged signature keeps the (compacted) history.
func (s *AlertService) Update(ctx context.Context, id uuid.UUID, in model.AlertInput) (*model.Alert, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := model.NewAlert(in)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	if in.Price <= 0 {
		updated.TargetPrice = existing.TargetPrice
	}

	if updated.Signature() != existing.Signature() {
		updated.ResetForNewSearch()
	} else {
		updated.PriceHistory = model.CompactPriceHistory(existing.PriceHistory)
		updated.FetchingPrices = existing.FetchingPrices
	}

	if err := s.repo.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return &updated, nil
}

// UpdateTargetPrice lowers (or raises) the alert's threshold without
// touching the search itself. This backs the link embedded in drop
// notifications.
func (s *AlertService) UpdateTargetPrice(ctx context.Context, id uuid.UUID, price float64) (*model.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	alert.TargetPrice = price
	if err := s.repo.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("update target price: %w", err)
	}
	return alert, nil
}

// Delete removes an alert.
func (s *AlertService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
