// Package monitor runs the scheduled monitoring pass: every active alert
// is priced through the session pool, its history updated, and drop
// notifications emitted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/farewatch/backend/internal/model"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
	"github.com/farewatch/backend/internal/scraper"
)

// FareSource prices one search. The production implementation is
// scraper.Fetcher; tests substitute fakes.
type FareSource interface {
	FetchFares(ctx context.Context, q scraper.SearchQuery) ([]scraper.Fare, error)
}

// Config holds monitoring pass configuration.
type Config struct {
	// BaseURL anchors the threshold-lowering link in notification bodies.
	BaseURL string
}

// PassResult aggregates one pass over all alerts.
type PassResult struct {
	Checked     int // alerts that went through the fetch pipeline
	Expired     int // alerts deleted because their date had passed
	Dropped     int // alerts whose fare fell below the threshold
	Unavailable int // alerts whose search produced no priceable fare
	Failed      int // alerts whose pipeline failed with a classified error
}

// Monitor coordinates one monitoring pass per invocation.
type Monitor struct {
	repo       repository.AlertRepository
	source     FareSource
	dispatcher notify.Dispatcher
	cfg        Config
	logger     *slog.Logger
}

// New creates a Monitor.
func New(repo repository.AlertRepository, source FareSource, dispatcher notify.Dispatcher, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = notify.NewLogDispatcher(logger)
	}
	return &Monitor{
		repo:       repo,
		source:     source,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunPass loads every alert and prices them all, soonest travel date
// first. Expired alerts are deleted without a fetch. Per-alert work is
// independent: a failed pipeline is counted and logged, never allowed to
// abort or delay a sibling. The pass returns once every alert finished.
func (m *Monitor) RunPass(ctx context.Context) (PassResult, error) {
	alerts, err := m.repo.List(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("load alerts: %w", err)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Date.Before(alerts[j].Date)
	})

	m.logger.Info("Starting monitoring pass", slog.Int("alerts", len(alerts)))
	start := time.Now()

	var result PassResult
	now := time.Now()

	pending := make([]model.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.Expired(now) {
			// a departed flight cannot usefully be re-priced
			m.logger.Info("Alert expired, deleting",
				slog.String("alert_id", alert.ID.String()),
				slog.String("search", alert.Signature()),
			)
			if err := m.repo.Delete(ctx, alert.ID); err != nil {
				m.logger.Error("Failed to delete expired alert",
					slog.String("alert_id", alert.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			result.Expired++
			continue
		}
		pending = append(pending, alert)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range pending {
		alert := pending[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			dropped, unavailable, err := m.checkOne(ctx, &alert)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			switch {
			case err != nil:
				result.Failed++
			case unavailable:
				result.Unavailable++
			case dropped:
				result.Dropped++
			}
		}()
	}
	wg.Wait()

	m.logger.Info("Monitoring pass completed",
		slog.Int("checked", result.Checked),
		slog.Int("expired", result.Expired),
		slog.Int("dropped", result.Dropped),
		slog.Int("unavailable", result.Unavailable),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// CheckAlert prices a single alert outside a scheduled pass, e.g. right
// after creation.
func (m *Monitor) CheckAlert(ctx context.Context, alert *model.Alert) error {
	_, _, err := m.checkOne(ctx, alert)
	return err
}

// checkOne runs the fetch pipeline for one alert and applies the
// record/notify policy. The in-flight marker clears on every path.
func (m *Monitor) checkOne(ctx context.Context, alert *model.Alert) (dropped, unavailable bool, err error) {
	log := m.logger.With(
		slog.String("alert_id", alert.ID.String()),
		slog.String("search", alert.Signature()),
	)

	if alert.Kind == model.KindRange {
		// reserved kind: no price is produced, no history update occurs
		alert.FetchingPrices = false
		if err := m.repo.Save(ctx, alert); err != nil {
			log.Error("Failed to save alert", slog.String("error", err.Error()))
			return false, false, err
		}
		return false, false, nil
	}

	fares, fetchErr := m.source.FetchFares(ctx, scraper.SearchQuery{
		From:           alert.From,
		To:             alert.To,
		Date:           alert.Date,
		PassengerCount: alert.PassengerCount,
		PointsBooking:  alert.PointsBooking,
	})
	if fetchErr != nil {
		alert.FetchingPrices = false
		if saveErr := m.repo.Save(ctx, alert); saveErr != nil {
			log.Error("Failed to save alert after fetch failure", slog.String("error", saveErr.Error()))
		}
		if errors.Is(fetchErr, scraper.ErrNoFaresFound) {
			// the page rendered with no trips on offer; the search is
			// fine, the date just has nothing to price
			log.Info("No fares offered for search")
			return false, true, nil
		}
		m.logFetchFailure(log, fetchErr)
		return false, false, fetchErr
	}

	price := minPrice(selectFares(*alert, fares))
	alert.RecordPrice(model.PricePoint{Time: time.Now(), Price: price})
	if err := m.repo.Save(ctx, alert); err != nil {
		log.Error("Failed to save alert", slog.String("error", err.Error()))
		return false, false, err
	}

	if math.IsInf(price, 1) {
		// page loaded but nothing matched: price unavailable, no sample
		log.Info("No priceable fare for search")
		return false, true, nil
	}

	log.Info("Recorded price", slog.Float64("price", price))

	if !alert.PriceHasDropped() {
		return false, false, nil
	}

	log.Info("Price dropped",
		slog.String("difference", alert.FormattedPriceDifference()),
		slog.String("latest", alert.FormattedLatestPrice()),
	)
	for _, msg := range notify.PriceDropMessages(*alert, m.cfg.BaseURL) {
		if err := m.dispatcher.Dispatch(ctx, msg); err != nil {
			// delivery failures never fail the pass
			log.Error("Notification dispatch failed",
				slog.String("channel", string(msg.Channel)),
				slog.String("error", err.Error()),
			)
		}
	}
	return true, false, nil
}

func (m *Monitor) logFetchFailure(log *slog.Logger, err error) {
	var scrapeErr *scraper.ScrapeError
	if errors.As(err, &scrapeErr) {
		switch {
		case errors.Is(err, scraper.ErrNetworkUnavailable):
			log.Warn("Network unavailable, will retry next pass", slog.String("error", err.Error()))
		case errors.Is(err, scraper.ErrAccessDenied):
			log.Error("Remote site blocked the request",
				slog.String("error", err.Error()),
				slog.String("diagnostics", scrapeErr.Diagnostics),
			)
		case errors.Is(err, scraper.ErrScrapeTimeout):
			log.Error("Fare results never appeared",
				slog.String("error", err.Error()),
				slog.String("diagnostics", scrapeErr.Diagnostics),
			)
		default:
			log.Error("Scrape failed",
				slog.String("error", err.Error()),
				slog.String("diagnostics", scrapeErr.Diagnostics),
			)
		}
		return
	}
	log.Error("Fetch failed", slog.String("error", err.Error()))
}

// selectFares applies the alert's matching policy to the page's fares.
func selectFares(a model.Alert, fares []scraper.Fare) []scraper.Fare {
	if a.Kind == model.KindDay {
		return fares
	}
	matched := make([]scraper.Fare, 0, len(fares))
	for _, f := range fares {
		if a.TracksFare(f.FlightNumbers) {
			matched = append(matched, f)
		}
	}
	return matched
}

func minPrice(fares []scraper.Fare) float64 {
	min := math.Inf(1)
	for _, f := range fares {
		if f.Price < min {
			min = f.Price
		}
	}
	return min
}
