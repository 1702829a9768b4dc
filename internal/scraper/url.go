package scraper

import (
	"net/url"
	"strconv"
	"time"
)

// SearchQuery captures everything needed to price one search.
type SearchQuery struct {
	From           string
	To             string
	Date           time.Time
	PassengerCount int
	PointsBooking  bool
}

// Route renders the query for log lines and error context.
func (q SearchQuery) Route() string {
	return q.From + "→" + q.To + " " + q.Date.UTC().Format("2006-01-02")
}

// SearchURL builds the deterministic one-way booking URL for a query.
func SearchURL(baseURL string, q SearchQuery) string {
	fareType := "USD"
	if q.PointsBooking {
		fareType = "POINTS"
	}
	passengers := q.PassengerCount
	if passengers <= 0 {
		passengers = 1
	}

	params := url.Values{}
	params.Set("originationAirportCode", q.From)
	params.Set("destinationAirportCode", q.To)
	params.Set("returnAirportCode", "")
	params.Set("departureDate", q.Date.UTC().Format("2006-01-02"))
	params.Set("departureTimeOfDay", "ALL_DAY")
	params.Set("returnDate", "")
	params.Set("returnTimeOfDay", "ALL_DAY")
	params.Set("adultPassengersCount", strconv.Itoa(passengers))
	params.Set("seniorPassengersCount", "0")
	params.Set("fareType", fareType)
	params.Set("passengerType", "ADULT")
	params.Set("tripType", "oneway")
	params.Set("reset", "true")

	return baseURL + "/air/booking/select.html?" + params.Encode()
}
