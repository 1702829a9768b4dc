// Package model defines the fare alert entity and its normalization rules.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farewatch/backend/internal/logger"
)

// SearchKind determines which fares on the results page an alert tracks.
type SearchKind string

const (
	// KindSingle tracks one specific flight (or connecting set of flights).
	KindSingle SearchKind = "SINGLE"
	// KindDay tracks the cheapest fare across all flights on the route/date.
	KindDay SearchKind = "DAY"
	// KindRange is reserved and currently produces no price.
	KindRange SearchKind = "RANGE"
)

// AllFlights is the signature component used when an alert tracks no
// specific flight numbers (DAY alerts, or absent/invalid input).
const AllFlights = "All"

// PricePoint is one sample in an alert's price history. Only finite
// prices are ever stored.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceHistory is a time-ordered series of samples, stored as JSONB.
type PriceHistory []PricePoint

// Value implements driver.Valuer.
func (h PriceHistory) Value() (driver.Value, error) {
	if h == nil {
		h = PriceHistory{}
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *PriceHistory) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*h = PriceHistory{}
		return nil
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("cannot scan %T into PriceHistory", src)
	}
}

// Alert is a tracked fare search. Instances are produced by NewAlert and
// treated as values; mutation happens through the methods below.
type Alert struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	Owner          string       `db:"owner" json:"owner,omitempty"`
	From           string       `db:"from_code" json:"from"`
	To             string       `db:"to_code" json:"to"`
	Date           time.Time    `db:"date" json:"date"`
	Kind           SearchKind   `db:"kind" json:"kind"`
	FlightNumbers  string       `db:"flight_numbers" json:"flightNumbers,omitempty"`
	PassengerCount int          `db:"passenger_count" json:"passengerCount"`
	PointsBooking  bool         `db:"points_booking" json:"pointsBooking"`
	TargetPrice    float64      `db:"target_price" json:"targetPrice"`
	PriceHistory   PriceHistory `db:"price_history" json:"priceHistory"`
	FetchingPrices bool         `db:"fetching_prices" json:"fetchingPrices"`
	Phone          string       `db:"phone" json:"phone,omitempty"`
	Email          string       `db:"email" json:"email,omitempty"`
	Webhook        string       `db:"webhook" json:"webhook,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// AlertInput is the raw, untrusted shape an alert is created or updated
// from. NewAlert never fails; malformed fields degrade to sentinels.
type AlertInput struct {
	Owner          string
	From           string
	To             string
	Date           time.Time
	Kind           SearchKind
	FlightNumbers  string
	BookingType    string // "cash" or "points"; anything else warns and defaults to cash
	PointsBooking  bool
	Price          float64
	PassengerCount int
	Phone          string
	Email          string
	Webhook        string
	PriceHistory   []PricePoint
	FetchingPrices bool
}

// NewAlert normalizes raw input into a canonical Alert.
func NewAlert(in AlertInput) Alert {
	kind := in.Kind
	if kind == "" {
		kind = KindSingle
	}

	points := in.PointsBooking
	if !points && in.BookingType != "" {
		switch in.BookingType {
		case "cash":
			points = false
		case "points":
			points = true
		default:
			logger.Warn("unexpected booking type, defaulting to cash", "booking_type", in.BookingType)
			points = false
		}
	}

	passengers := in.PassengerCount
	if passengers <= 0 {
		passengers = 1
	}

	return Alert{
		Owner:          in.Owner,
		From:           strings.ToUpper(strings.TrimSpace(in.From)),
		To:             strings.ToUpper(strings.TrimSpace(in.To)),
		Date:           in.Date,
		Kind:           kind,
		FlightNumbers:  NormalizeFlightNumbers(in.FlightNumbers),
		PassengerCount: passengers,
		PointsBooking:  points,
		TargetPrice:    in.Price,
		PriceHistory:   CompactPriceHistory(in.PriceHistory),
		FetchingPrices: in.FetchingPrices,
		Phone:          digitsOnly(in.Phone),
		Email:          stripWhitespace(in.Email),
		Webhook:        strings.TrimSpace(in.Webhook),
	}
}

// NormalizeFlightNumbers splits on commas, trims each entry, drops empties
// and rejoins. Absent or invalid input yields the empty sentinel.
func NormalizeFlightNumbers(raw string) string {
	parts := strings.Split(raw, ",")
	kept := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, ",")
}

// CompactPriceHistory drops every sample whose price equals both its
// immediate predecessor's and successor's. The first and last sample of
// any run of equal prices survive, so every point where the price moved
// is preserved. Compaction is idempotent.
func CompactPriceHistory(history []PricePoint) PriceHistory {
	compact := make(PriceHistory, 0, len(history))
	for i, sample := range history {
		prevDifferent := i == 0 || sample.Price != history[i-1].Price
		nextDifferent := i == len(history)-1 || sample.Price != history[i+1].Price
		if prevDifferent || nextDifferent {
			compact = append(compact, sample)
		}
	}
	return compact
}

// Signature identifies "the same search". Two inputs normalizing to the
// same signature share a price history; anything else is a different
// search and starts fresh.
func (a Alert) Signature() string {
	numbers := a.FlightNumbers
	if numbers == "" {
		numbers = AllFlights
	}
	return strings.Join([]string{a.FormattedDate(), a.From, a.To, numbers}, "|")
}

// Expired reports whether the alert's travel date is in the past.
func (a Alert) Expired(now time.Time) bool {
	return a.Date.Before(now)
}

// LatestPrice returns the most recent recorded price, or +Inf when no
// sample exists yet ("no data" is worse than any real price).
func (a Alert) LatestPrice() float64 {
	if len(a.PriceHistory) == 0 {
		return math.Inf(1)
	}
	return a.PriceHistory[len(a.PriceHistory)-1].Price
}

// PriceHasDropped reports whether the latest recorded price is strictly
// below the alert's target price.
func (a Alert) PriceHasDropped() bool {
	return a.LatestPrice() < a.TargetPrice
}

// RecordPrice appends a sample when its price is finite. An unavailable
// (+Inf) result is not a data point. The in-flight marker is cleared
// either way.
func (a *Alert) RecordPrice(sample PricePoint) {
	if !math.IsInf(sample.Price, 0) && !math.IsNaN(sample.Price) {
		a.PriceHistory = append(a.PriceHistory, sample)
	}
	a.FetchingPrices = false
}

// ResetForNewSearch clears the price history after the search signature
// changed. Stale samples from an unrelated search must not pollute the
// new one.
func (a *Alert) ResetForNewSearch() {
	a.PriceHistory = PriceHistory{}
	a.FetchingPrices = true
}

// TracksFare reports whether a fare option's flight-number set intersects
// the alert's tracked numbers.
func (a Alert) TracksFare(fareNumbers string) bool {
	tracked := strings.Split(a.FlightNumbers, ",")
	for _, fn := range strings.Split(fareNumbers, ",") {
		for _, tn := range tracked {
			if fn != "" && fn == tn {
				return true
			}
		}
	}
	return false
}

// FormattedDate renders the travel date as an en-US date in UTC.
func (a Alert) FormattedDate() string {
	return a.Date.UTC().Format("1/2/2006")
}

// FormattedFlightNumbers renders "WN 123, 456" for display.
func (a Alert) FormattedFlightNumbers() string {
	return "WN " + strings.Join(strings.Split(a.FlightNumbers, ","), ", ")
}

// FormattedTargetPrice renders the threshold with its unit.
func (a Alert) FormattedTargetPrice() string {
	return a.formatAmount(a.TargetPrice)
}

// FormattedLatestPrice renders the latest sample with its unit.
func (a Alert) FormattedLatestPrice() string {
	return a.formatAmount(a.LatestPrice())
}

// FormattedPriceDifference renders target minus latest with its unit.
func (a Alert) FormattedPriceDifference() string {
	return a.formatAmount(a.TargetPrice - a.LatestPrice())
}

func (a Alert) formatAmount(v float64) string {
	amount := strconv.FormatFloat(v, 'f', -1, 64)
	if a.PointsBooking {
		return amount + " points"
	}
	return "$" + amount
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripWhitespace(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
