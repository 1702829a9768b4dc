// Package repository provides data access for fare alerts.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/farewatch/backend/internal/model"
)

// ErrNotFound is returned when no alert matches the given id.
var ErrNotFound = errors.New("alert not found")

// AlertRepository is the data-access capability the monitoring core
// depends on. The storage technology behind it is opaque to callers.
type AlertRepository interface {
	List(ctx context.Context) ([]model.Alert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	Save(ctx context.Context, alert *model.Alert) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type alertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a PostgreSQL-backed alert repository.
func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &alertRepository{db: db}
}

// List returns every non-deleted alert, soonest travel date first.
func (r *alertRepository) List(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT * FROM alerts ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// GetByID returns one alert by id.
func (r *alertRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, `
		SELECT * FROM alerts WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &alert, nil
}

// Save inserts or updates an alert and refreshes its timestamps.
func (r *alertRepository) Save(ctx context.Context, alert *model.Alert) error {
	query := `
		INSERT INTO alerts (
			id, owner, from_code, to_code, date, kind, flight_numbers,
			passenger_count, points_booking, target_price, price_history,
			fetching_prices, phone, email, webhook
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			from_code = EXCLUDED.from_code,
			to_code = EXCLUDED.to_code,
			date = EXCLUDED.date,
			kind = EXCLUDED.kind,
			flight_numbers = EXCLUDED.flight_numbers,
			passenger_count = EXCLUDED.passenger_count,
			points_booking = EXCLUDED.points_booking,
			target_price = EXCLUDED.target_price,
			price_history = EXCLUDED.price_history,
			fetching_prices = EXCLUDED.fetching_prices,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			webhook = EXCLUDED.webhook,
			updated_at = CURRENT_TIMESTAMP
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		alert.ID, alert.Owner, alert.From, alert.To, alert.Date, alert.Kind,
		alert.FlightNumbers, alert.PassengerCount, alert.PointsBooking,
		alert.TargetPrice, alert.PriceHistory, alert.FetchingPrices,
		alert.Phone, alert.Email, alert.Webhook,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// Delete removes an alert.
func (r *alertRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM alerts WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
