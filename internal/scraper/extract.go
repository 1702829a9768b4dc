package scraper

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fare is one priced option for the outbound trip.
type Fare struct {
	FlightNumbers string // comma-joined when the routing has connections
	Stops         int
	Price         float64 // +Inf when every fare class is sold out
}

// Selectors for the rendered booking page. The outbound product is always
// the first on the page for a one-way search.
const (
	selOutboundRows  = "#air-booking-product-0 li.air-booking-select-detail"
	selFlightNumbers = ".select-detail--flight-numbers .actionable--text"
	selDurationStops = ".flight-stops--duration"
	selDurationTime  = ".flight-stops--duration-time"
	selFareClass     = ".fare-button--text"
	selFareTotal     = ".fare-button--value-total"
)

// ExtractFares parses rendered booking-page HTML into fare options. A page
// with no fare rows yields an empty slice, not an error; the caller decides
// whether that is actionable.
func ExtractFares(html string) ([]Fare, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse fare page: %w", err)
	}

	fares := []Fare{}
	doc.Find(selOutboundRows).Each(func(_ int, row *goquery.Selection) {
		fares = append(fares, parseFareRow(row))
	})
	return fares, nil
}

func parseFareRow(row *goquery.Selection) Fare {
	return Fare{
		FlightNumbers: parseFlightNumbers(row.Find(selFlightNumbers).Text()),
		Stops:         parseStops(row),
		Price:         parseMinPrice(row),
	}
}

// parseFlightNumbers turns "# 123 / 456" into "123,456".
func parseFlightNumbers(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimPrefix(label, "# ")
	label = strings.TrimPrefix(label, "#")
	parts := strings.Split(label, " / ")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// parseStops extracts the stop count from the combined duration text, e.g.
// "Duration8h 5m1 stop" with a duration of "8h 5m" leaves "1 stop". A
// missing badge means nonstop.
func parseStops(row *goquery.Selection) int {
	combined := row.Find(selDurationStops).Text()
	duration := row.Find(selDurationTime).Text()

	rest := combined
	if duration != "" {
		if parts := strings.SplitN(combined, duration, 2); len(parts) == 2 {
			rest = parts[1]
		}
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0
	}
	stops, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return stops
}

// parseMinPrice takes the minimum across every fare class in the row. A
// sold-out class prices at +Inf and is never chosen unless all classes
// are sold out, which leaves the row unavailable.
func parseMinPrice(row *goquery.Selection) float64 {
	min := math.Inf(1)
	row.Find(selFareClass).Each(func(_ int, class *goquery.Selection) {
		var price float64
		if strings.TrimSpace(class.Text()) == "Sold out" {
			price = math.Inf(1)
		} else {
			price = parsePrice(class.Find(selFareTotal).Text())
		}
		if price < min {
			min = price
		}
	})
	return min
}

// parsePrice strips thousands separators and currency symbols. Text that
// still fails to parse prices as unavailable.
func parsePrice(text string) float64 {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimPrefix(text, "$")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return math.Inf(1)
	}
	return v
}
