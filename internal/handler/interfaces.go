package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/farewatch/backend/internal/model"
)

// AlertServiceInterface defines the alert operations the HTTP layer needs.
type AlertServiceInterface interface {
	Create(ctx context.Context, in model.AlertInput) (*model.Alert, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	List(ctx context.Context) ([]model.Alert, error)
	Update(ctx context.Context, id uuid.UUID, in model.AlertInput) (*model.Alert, error)
	UpdateTargetPrice(ctx context.Context, id uuid.UUID, price float64) (*model.Alert, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
