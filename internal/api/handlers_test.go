package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/network"
	"github.com/passbi/connscan/internal/publisher"
	"github.com/passbi/connscan/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func conn(from, to string, dep, arr int, service string) models.Connection {
	return models.Connection{
		DepartureStop: models.Stop{ID: from},
		DepartureTime: at(dep),
		ArrivalStop:   models.Stop{ID: to},
		ArrivalTime:   at(arr),
		Service:       models.Service{ID: service},
	}
}

func loadedNetwork(t *testing.T) *network.Network {
	t.Helper()
	n := network.New(routing.DefaultMinimumTransferTime)
	require.NoError(t, n.Load([]models.Connection{
		conn("A", "B", 0, 10, "1"),
		conn("A", "D", 0, 30, "3"),
		conn("B", "D", 12, 22, "2"),
		conn("B", "D", 20, 25, "4"),
	}, []models.Stop{{ID: "A", Name: "Airport"}, {ID: "B", Name: "Bay"}, {ID: "D", Name: "Docks"}}, true))
	return n
}

type fakeCache struct {
	mu        sync.Mutex
	journeys  map[string]*models.JourneyResult
	gets      int
	healthErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{journeys: make(map[string]*models.JourneyResult)}
}

func (f *fakeCache) GetJourney(_ context.Context, key string) (*models.JourneyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.journeys[key], nil
}

func (f *fakeCache) SetJourney(_ context.Context, key string, j *models.JourneyResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journeys[key] = j
	return nil
}

func (f *fakeCache) AcquireLock(context.Context, string) (bool, error) { return true, nil }
func (f *fakeCache) ReleaseLock(context.Context, string) error         { return nil }

func (f *fakeCache) WaitForJourney(ctx context.Context, key string, _ time.Duration) (*models.JourneyResult, error) {
	return f.GetJourney(ctx, key)
}

func (f *fakeCache) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeCache) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.journeys)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publisher.JourneyEvent
}

func (f *fakePublisher) PublishJourney(ev publisher.JourneyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func newApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	h.Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func get(t *testing.T, app *fiber.App, url string) (int, map[string]any) {
	return do(t, app, httptest.NewRequest("GET", url, nil))
}

const departure = "2026-10-19T08:00:00Z"

func TestJourneys(t *testing.T) {
	cache := newFakeCache()
	pub := &fakePublisher{}
	app := newApp(NewHandler(Deps{Network: loadedNetwork(t), Cache: cache, Publisher: pub}))

	t.Run("All priorities", func(t *testing.T) {
		status, body := get(t, app, "/v2/journeys?from=A&to=D&departure="+departure)
		require.Equal(t, 200, status, body)

		journeys := body["journeys"].(map[string]any)
		require.Len(t, journeys, 3)

		ea := journeys["earliest_arrival"].(map[string]any)
		assert.Equal(t, "2026-10-19T08:25:00Z", ea["arrival_time"])
		assert.Equal(t, 1.0, ea["transfers"])
		assert.Len(t, ea["legs"], 2)

		lt := journeys["least_transfers"].(map[string]any)
		assert.Equal(t, 0.0, lt["transfers"])
		assert.Len(t, lt["connections"], 1)

		assert.Equal(t, "Airport", body["from"].(map[string]any)["name"])
		assert.Equal(t, 3, cache.size())
		assert.Len(t, pub.events, 3)
	})

	t.Run("Second query is served from the cache", func(t *testing.T) {
		before := len(pub.events)
		status, body := get(t, app, "/v2/journeys?from=A&to=D&priority=earliest_arrival&departure="+departure)
		require.Equal(t, 200, status)
		assert.Len(t, body["journeys"], 1)
		assert.Equal(t, 3, cache.size())

		require.Len(t, pub.events, before+1)
		assert.True(t, pub.events[before].Cached)
	})

	t.Run("Unreachable", func(t *testing.T) {
		status, body := get(t, app, "/v2/journeys?from=D&to=A&departure="+departure)
		assert.Equal(t, 404, status)
		assert.Equal(t, "no journey found", body["error"])

		// cached as empty and still reported as not found
		status, _ = get(t, app, "/v2/journeys?from=D&to=A&departure="+departure)
		assert.Equal(t, 404, status)
	})

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"Missing to", "/v2/journeys?from=A", 400},
		{"Bad departure", "/v2/journeys?from=A&to=D&departure=tomorrow", 400},
		{"Bad priority", "/v2/journeys?from=A&to=D&priority=scenic", 400},
		{"Unknown stop", "/v2/journeys?from=A&to=Z", 404},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := get(t, app, tc.url)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestJourneysWithoutCache(t *testing.T) {
	app := newApp(NewHandler(Deps{Network: loadedNetwork(t)}))

	status, body := get(t, app, "/v2/journeys?from=A&to=D&priority=transfers&departure="+departure)
	require.Equal(t, 200, status)
	assert.Contains(t, body["journeys"], "least_transfers")
}

func TestNetworkNotLoaded(t *testing.T) {
	app := newApp(NewHandler(Deps{Network: network.New(routing.DefaultMinimumTransferTime)}))

	status, _ := get(t, app, "/v2/journeys?from=A&to=D")
	assert.Equal(t, 503, status)

	status, body := get(t, app, "/health")
	assert.Equal(t, 503, status)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHealth(t *testing.T) {
	cache := newFakeCache()
	last := &models.ImportLog{ID: 7, Status: "success", ConnectionsCount: 4}
	h := NewHandler(Deps{
		Network:    loadedNetwork(t),
		Cache:      cache,
		DBCheck:    func(context.Context) error { return nil },
		LastImport: func(context.Context) (*models.ImportLog, error) { return last, nil },
	})
	app := newApp(h)

	status, body := get(t, app, "/health")
	require.Equal(t, 200, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 4.0, body["network"].(map[string]any)["connections"])
	assert.Equal(t, 7.0, body["last_import"].(map[string]any)["id"])

	cache.healthErr = errors.New("connection refused")
	status, body = get(t, app, "/health")
	assert.Equal(t, 200, status)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
}

func TestPlan(t *testing.T) {
	app := newApp(NewHandler(Deps{Network: network.New(routing.DefaultMinimumTransferTime)}))

	post := func(t *testing.T, body string) (int, map[string]any) {
		req := httptest.NewRequest("POST", "/v2/journeys/plan", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return do(t, app, req)
	}

	timetable := `"connections": [
		{"departureStop": "A", "departureTime": "2026-10-19T08:00:00Z", "arrivalStop": "B", "arrivalTime": "2026-10-19T08:10:00Z", "service": "1"},
		{"departureStop": "B", "departureTime": "2026-10-19T08:12:00Z", "arrivalStop": "C", "arrivalTime": "2026-10-19T08:20:00Z", "service": {"id": "2", "name": "Express"}}
	]`

	t.Run("One minute transfer", func(t *testing.T) {
		status, body := post(t, `{`+timetable+`, "source": "A", "target": "C",
			"departure": "2026-10-19T07:55:00Z", "minimum_transfer_time_seconds": 60}`)
		require.Equal(t, 200, status, body)
		assert.Equal(t, "earliest_arrival", body["priority"])
		assert.Equal(t, 1.0, body["transfers"])
		assert.Equal(t, 120000.0, body["average_transfer_wait_ms"])
	})

	t.Run("Explicit zero transfer time", func(t *testing.T) {
		status, body := post(t, `{`+timetable+`, "source": "A", "target": "C",
			"departure": "2026-10-19T07:55:00Z", "minimum_transfer_time_seconds": 0}`)
		require.Equal(t, 200, status, body)
		assert.Equal(t, 120000.0, body["average_transfer_wait_ms"])
	})

	t.Run("Server transfer time applies when omitted", func(t *testing.T) {
		quick := time.Minute
		app := newApp(NewHandler(Deps{Network: network.New(0), MinimumTransferTime: &quick}))
		req := httptest.NewRequest("POST", "/v2/journeys/plan", strings.NewReader(`{`+timetable+`,
			"source": "A", "target": "C", "departure": "2026-10-19T07:55:00Z"}`))
		req.Header.Set("Content-Type", "application/json")
		status, body := do(t, app, req)
		require.Equal(t, 200, status, body)
		assert.Equal(t, 1.0, body["transfers"])
	})

	t.Run("Default transfer time is too long", func(t *testing.T) {
		status, body := post(t, `{`+timetable+`, "source": {"id": "A"}, "target": "C",
			"departure": 1792396800000, "priority": "least_transfers"}`)
		assert.Equal(t, 404, status)
		assert.Equal(t, "no journey found", body["error"])
	})

	tests := []struct {
		name string
		body string
	}{
		{"Malformed JSON", `{"connections": [`},
		{"No connections", `{"connections": [], "source": "A", "target": "B", "departure": 0}`},
		{"Missing target", `{` + timetable + `, "source": "A", "departure": 0}`},
		{"Missing departure", `{` + timetable + `, "source": "A", "target": "C"}`},
		{"Unknown priority", `{` + timetable + `, "source": "A", "target": "C", "departure": 0, "priority": "scenic"}`},
		{"Negative transfer time", `{` + timetable + `, "source": "A", "target": "C", "departure": 0, "minimum_transfer_time_seconds": -1}`},
		{"Arrival before departure", `{"connections": [{"departureStop": "A", "departureTime": 10, "arrivalStop": "B", "arrivalTime": 5, "service": "1"}],
			"source": "A", "target": "B", "departure": 0}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := post(t, tc.body)
			assert.Equal(t, 400, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStops(t *testing.T) {
	app := newApp(NewHandler(Deps{Network: loadedNetwork(t)}))

	status, body := get(t, app, "/v2/stops?q=do")
	require.Equal(t, 200, status)
	assert.Equal(t, 1.0, body["count"])

	status, body = get(t, app, "/v2/stops?limit=2")
	require.Equal(t, 200, status)
	assert.Equal(t, 2.0, body["count"])

	status, _ = get(t, app, "/v2/stops?limit=0")
	assert.Equal(t, 400, status)
}

func TestStopDepartures(t *testing.T) {
	app := newApp(NewHandler(Deps{Network: loadedNetwork(t)}))

	status, body := get(t, app, "/v2/stops/B/departures?after=2026-10-19T08:15:00Z")
	require.Equal(t, 200, status)
	deps := body["departures"].([]any)
	require.Len(t, deps, 1)
	assert.Equal(t, "4", deps[0].(map[string]any)["service"].(map[string]any)["id"])

	status, body = get(t, app, "/v2/stops/D/departures?after="+departure)
	require.Equal(t, 200, status)
	assert.Empty(t, body["departures"])

	status, _ = get(t, app, "/v2/stops/Q/departures")
	assert.Equal(t, 404, status)

	status, _ = get(t, app, "/v2/stops/B/departures?limit=1000")
	assert.Equal(t, 400, status)
}
