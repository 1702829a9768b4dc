package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farewatch/backend/internal/apperror"
	"github.com/farewatch/backend/internal/model"
	"github.com/farewatch/backend/internal/repository"
)

// AlertHandler exposes fare alert CRUD over HTTP.
type AlertHandler struct {
	service AlertServiceInterface
}

func NewAlertHandler(service AlertServiceInterface) *AlertHandler {
	return &AlertHandler{service: service}
}

// alertRequest is the JSON shape accepted on create and update.
type alertRequest struct {
	Owner          string  `json:"owner"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Date           string  `json:"date"`
	Kind           string  `json:"kind"`
	FlightNumbers  string  `json:"flightNumbers"`
	BookingType    string  `json:"bookingType"`
	Price          float64 `json:"price"`
	PassengerCount int     `json:"passengerCount"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	Webhook        string  `json:"webhook"`
}

// toInput converts the request body to a model.AlertInput. The travel
// date accepts "2006-01-02" or full RFC 3339.
func (r alertRequest) toInput() (model.AlertInput, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return model.AlertInput{}, err
	}

	return model.AlertInput{
		Owner:          r.Owner,
		From:           r.From,
		To:             r.To,
		Date:           date,
		Kind:           model.SearchKind(r.Kind),
		FlightNumbers:  r.FlightNumbers,
		BookingType:    r.BookingType,
		Price:          r.Price,
		PassengerCount: r.PassengerCount,
		Phone:          r.Phone,
		Email:          r.Email,
		Webhook:        r.Webhook,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Create registers a new fare alert and kicks off its first price check.
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAppError(w, apperror.BadRequest("invalid request body: "+err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondAppError(w, apperror.ValidationError("date", "date must be yyyy-mm-dd or RFC 3339"))
		return
	}
	if input.From == "" || input.To == "" {
		respondAppError(w, apperror.ValidationError("from", "from and to airports are required"))
		return
	}

	alert, err := h.service.Create(r.Context(), input)
	if err != nil {
		respondAppError(w, apperror.Internal(err))
		return
	}

	respondJSON(w, http.StatusCreated, alert)
}

// Get returns one alert by id.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, apperror.BadRequest("invalid alert ID"))
		return
	}

	alert, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondAppError(w, apperror.NotFound("alert"))
			return
		}
		respondAppError(w, apperror.Internal(err))
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

// List returns all alerts, soonest travel date first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.List(r.Context())
	if err != nil {
		respondAppError(w, apperror.Internal(err))
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

// Update replaces an alert's search parameters. A changed search resets
// the price history.
func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, apperror.BadRequest("invalid alert ID"))
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAppError(w, apperror.BadRequest("invalid request body: "+err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondAppError(w, apperror.ValidationError("date", "date must be yyyy-mm-dd or RFC 3339"))
		return
	}

	alert, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondAppError(w, apperror.NotFound("alert"))
			return
		}
		respondAppError(w, apperror.Internal(err))
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

// ChangePrice updates only the alert's target price. Drop notifications
// link here so a recipient can lower the threshold in one click.
func (h *AlertHandler) ChangePrice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, apperror.BadRequest("invalid alert ID"))
		return
	}

	price, err := strconv.ParseFloat(r.URL.Query().Get("price"), 64)
	if err != nil || price <= 0 {
		respondAppError(w, apperror.ValidationError("price", "price must be a positive number"))
		return
	}

	alert, err := h.service.UpdateTargetPrice(r.Context(), id, price)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondAppError(w, apperror.NotFound("alert"))
			return
		}
		respondAppError(w, apperror.Internal(err))
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

// Delete removes an alert.
func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, apperror.BadRequest("invalid alert ID"))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondAppError(w, apperror.NotFound("alert"))
			return
		}
		respondAppError(w, apperror.Internal(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
