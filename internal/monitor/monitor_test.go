package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farewatch/backend/internal/model"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
	"github.com/farewatch/backend/internal/scraper"
)

// fakeRepo is an in-memory AlertRepository.
type fakeRepo struct {
	mu      sync.Mutex
	alerts  map[uuid.UUID]model.Alert
	deleted []uuid.UUID
	listErr error
}

func newFakeRepo(alerts ...model.Alert) *fakeRepo {
	r := &fakeRepo{alerts: make(map[uuid.UUID]model.Alert)}
	for _, a := range alerts {
		r.alerts[a.ID] = a
	}
	return r
}

func (r *fakeRepo) List(_ context.Context) ([]model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]model.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *fakeRepo) Save(_ context.Context, alert *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = *alert
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.alerts, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) stored(id uuid.UUID) model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts[id]
}

// fakeSource returns canned fares keyed by route.
type fakeSource struct {
	mu      sync.Mutex
	fares   map[string][]scraper.Fare
	err     error
	fetches int
}

func (s *fakeSource) FetchFares(_ context.Context, q scraper.SearchQuery) ([]scraper.Fare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.fares[q.From+q.To], nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// captureDispatcher records every dispatched message.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *captureDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

func (d *captureDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.sent...)
}

func futureDate() time.Time {
	return time.Now().AddDate(0, 1, 0)
}

func singleAlert(target float64, numbers string) model.Alert {
	return model.Alert{
		ID:             uuid.New(),
		From:           "OAK",
		To:             "DAL",
		Date:           futureDate(),
		Kind:           model.KindSingle,
		FlightNumbers:  numbers,
		PassengerCount: 1,
		TargetPrice:    target,
		Email:          "traveler@example.com",
		FetchingPrices: true,
	}
}

func TestRunPass_RecordsPriceAndNotifiesDrop(t *testing.T) {
	t.Parallel()

	alert := singleAlert(200, "123")
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {
			{FlightNumbers: "123", Price: 180},
			{FlightNumbers: "456", Price: 50},
		},
	}}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{BaseURL: "http://localhost:8080/api/alerts"}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, result.Failed)

	// Only the tracked flight's price counts, not the cheaper sibling.
	stored := repo.stored(alert.ID)
	require.Len(t, stored.PriceHistory, 1)
	assert.Equal(t, 180.0, stored.PriceHistory[0].Price)
	assert.False(t, stored.FetchingPrices)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.ChannelEmail, msgs[0].Channel)
	assert.Contains(t, msgs[0].Body, "change-price?price=180")
}

func TestRunPass_NoDropBelowTarget(t *testing.T) {
	t.Parallel()

	alert := singleAlert(100, "123")
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {{FlightNumbers: "123", Price: 150}},
	}}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Dropped)
	assert.Empty(t, dispatcher.messages())

	stored := repo.stored(alert.ID)
	require.Len(t, stored.PriceHistory, 1)
	assert.Equal(t, 150.0, stored.PriceHistory[0].Price)
}

func TestRunPass_DayAlertTakesCheapestFare(t *testing.T) {
	t.Parallel()

	alert := singleAlert(200, "")
	alert.Kind = model.KindDay
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {
			{FlightNumbers: "123", Price: 180},
			{FlightNumbers: "456", Price: 95},
			{FlightNumbers: "789", Price: math.Inf(1)},
		},
	}}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Dropped)
	stored := repo.stored(alert.ID)
	require.Len(t, stored.PriceHistory, 1)
	assert.Equal(t, 95.0, stored.PriceHistory[0].Price)
}

func TestRunPass_UnavailableLeavesNoSample(t *testing.T) {
	t.Parallel()

	// Tracked flight absent from the page: nothing priceable.
	alert := singleAlert(200, "999")
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {{FlightNumbers: "123", Price: 180}},
	}}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Unavailable)
	assert.Equal(t, 0, result.Dropped)
	assert.Empty(t, dispatcher.messages())

	stored := repo.stored(alert.ID)
	assert.Empty(t, stored.PriceHistory)
	assert.False(t, stored.FetchingPrices)
}

func TestRunPass_EmptyResultsCountedUnavailable(t *testing.T) {
	t.Parallel()

	// A results page with no trips on offer is a quiet date, not a
	// broken scrape: no failure counted, no sample recorded.
	alert := singleAlert(200, "123")
	repo := newFakeRepo(alert)
	source := &fakeSource{err: &scraper.ScrapeError{
		Route: "OAK-DAL",
		Err:   scraper.ErrNoFaresFound,
	}}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Unavailable)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, dispatcher.messages())

	stored := repo.stored(alert.ID)
	assert.Empty(t, stored.PriceHistory)
	assert.False(t, stored.FetchingPrices)
}

func TestRunPass_ExpiredAlertDeletedWithoutFetch(t *testing.T) {
	t.Parallel()

	expired := singleAlert(200, "123")
	expired.Date = time.Now().AddDate(0, 0, -1)
	repo := newFakeRepo(expired)
	source := &fakeSource{}

	m := New(repo, source, nil, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 0, result.Checked)
	assert.Equal(t, 0, source.fetchCount())
	assert.Equal(t, []uuid.UUID{expired.ID}, repo.deleted)
}

func TestRunPass_FailureIsolation(t *testing.T) {
	t.Parallel()

	// One alert on a route whose fetch fails, one on a healthy route.
	// The failure is counted; the sibling still gets its price.
	healthy := singleAlert(200, "123")
	broken := singleAlert(200, "123")
	broken.From = "SJC"
	broken.To = "AUS"

	repo := newFakeRepo(healthy, broken)
	source := &routeAwareSource{
		fares:    map[string][]scraper.Fare{"OAKDAL": {{FlightNumbers: "123", Price: 150}}},
		failFrom: "SJC",
	}
	dispatcher := &captureDispatcher{}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Dropped)

	// The failed alert's in-flight marker still cleared.
	assert.False(t, repo.stored(broken.ID).FetchingPrices)
	assert.Empty(t, repo.stored(broken.ID).PriceHistory)
}

type routeAwareSource struct {
	fares    map[string][]scraper.Fare
	failFrom string
}

func (s *routeAwareSource) FetchFares(_ context.Context, q scraper.SearchQuery) ([]scraper.Fare, error) {
	if q.From == s.failFrom {
		return nil, errors.New("net::ERR_CONNECTION_REFUSED")
	}
	return s.fares[q.From+q.To], nil
}

func TestRunPass_RangeKindClearsFlagWithoutFetch(t *testing.T) {
	t.Parallel()

	alert := singleAlert(200, "")
	alert.Kind = model.KindRange
	repo := newFakeRepo(alert)
	source := &fakeSource{}

	m := New(repo, source, nil, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 0, source.fetchCount())

	stored := repo.stored(alert.ID)
	assert.False(t, stored.FetchingPrices)
	assert.Empty(t, stored.PriceHistory)
}

func TestRunPass_ListFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.listErr = errors.New("connection reset")

	m := New(repo, &fakeSource{}, nil, Config{}, nil)
	_, err := m.RunPass(context.Background())
	assert.Error(t, err)
}

func TestRunPass_DispatchFailureDoesNotFailPass(t *testing.T) {
	t.Parallel()

	alert := singleAlert(200, "123")
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {{FlightNumbers: "123", Price: 100}},
	}}
	dispatcher := &captureDispatcher{err: errors.New("smtp unavailable")}

	m := New(repo, source, dispatcher, Config{}, nil)
	result, err := m.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, result.Failed)
}

func TestCheckAlert(t *testing.T) {
	t.Parallel()

	alert := singleAlert(200, "123")
	repo := newFakeRepo(alert)
	source := &fakeSource{fares: map[string][]scraper.Fare{
		"OAKDAL": {{FlightNumbers: "123", Price: 175}},
	}}

	m := New(repo, source, nil, Config{}, nil)

	working := alert
	require.NoError(t, m.CheckAlert(context.Background(), &working))

	assert.Equal(t, 175.0, working.LatestPrice())
	assert.False(t, working.FetchingPrices)
}

func TestSelectFares(t *testing.T) {
	t.Parallel()

	fares := []scraper.Fare{
		{FlightNumbers: "123", Price: 180},
		{FlightNumbers: "456,789", Price: 90},
	}

	single := model.Alert{Kind: model.KindSingle, FlightNumbers: "789"}
	matched := selectFares(single, fares)
	require.Len(t, matched, 1)
	assert.Equal(t, "456,789", matched[0].FlightNumbers)

	day := model.Alert{Kind: model.KindDay}
	assert.Len(t, selectFares(day, fares), 2)
}

func TestMinPrice(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsInf(minPrice(nil), 1))
	assert.Equal(t, 90.0, minPrice([]scraper.Fare{{Price: 180}, {Price: 90}}))
	assert.True(t, math.IsInf(minPrice([]scraper.Fare{{Price: math.Inf(1)}}), 1))
}
