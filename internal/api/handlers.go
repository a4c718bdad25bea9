package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/connscan/internal/cache"
	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/network"
	"github.com/passbi/connscan/internal/publisher"
	"github.com/passbi/connscan/internal/routing"
)

// ErrQueryTimeout is returned when a scan outlives the query timeout
var ErrQueryTimeout = errors.New("journey computation timed out")

// JourneyCache stores computed journeys. *cache.Store implements it.
type JourneyCache interface {
	GetJourney(ctx context.Context, key string) (*models.JourneyResult, error)
	SetJourney(ctx context.Context, key string, journey *models.JourneyResult) error
	AcquireLock(ctx context.Context, key string) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	WaitForJourney(ctx context.Context, key string, maxWait time.Duration) (*models.JourneyResult, error)
	HealthCheck(ctx context.Context) error
}

// EventPublisher announces computed journeys. *publisher.NATSPublisher
// implements it.
type EventPublisher interface {
	PublishJourney(ev publisher.JourneyEvent) error
}

// Observer records planner metrics. *metrics.Collector implements it.
type Observer interface {
	ObserveScan(priority string, d time.Duration, found bool)
	ObserveCache(hit bool)
}

// Deps are the collaborators of Handler. Only Network is required.
type Deps struct {
	Network   *network.Network
	Cache     JourneyCache
	Publisher EventPublisher
	Metrics   Observer
	// DBCheck reports database health; nil when the network is not read
	// from a database
	DBCheck func(ctx context.Context) error
	// LastImport returns the latest successful import, if any
	LastImport func(ctx context.Context) (*models.ImportLog, error)

	QueryTimeout time.Duration
	// MinimumTransferTime is the default for ad-hoc plans; nil means
	// routing.DefaultMinimumTransferTime
	MinimumTransferTime *time.Duration
	// LockWait bounds how long a request waits for another one computing
	// the same journey
	LockWait time.Duration
}

// Handler serves the HTTP API
type Handler struct {
	Deps
}

// NewHandler fills unset durations with defaults
func NewHandler(d Deps) *Handler {
	if d.QueryTimeout <= 0 {
		d.QueryTimeout = 5 * time.Second
	}
	if d.LockWait <= 0 {
		d.LockWait = 3 * time.Second
	}
	if d.Metrics == nil {
		d.Metrics = nopObserver{}
	}
	return &Handler{Deps: d}
}

type nopObserver struct{}

func (nopObserver) ObserveScan(string, time.Duration, bool) {}
func (nopObserver) ObserveCache(bool)                       {}

// Register mounts the API routes on app. middleware guards the /v2 routes
// only, so health checks never need a key.
func (h *Handler) Register(app *fiber.App, middleware ...fiber.Handler) {
	app.Get("/health", h.Health)

	v2 := app.Group("/v2", middleware...)
	v2.Get("/journeys", h.Journeys)
	v2.Post("/journeys/plan", h.Plan)
	v2.Get("/stops", h.StopsSearch)
	v2.Get("/stops/:id/departures", h.StopDepartures)
}

// JourneysResponse is the response of GET /v2/journeys, keyed by priority
type JourneysResponse struct {
	From      models.Stop                      `json:"from"`
	To        models.Stop                      `json:"to"`
	Departure time.Time                        `json:"departure"`
	Journeys  map[string]*models.JourneyResult `json:"journeys"`
}

// Journeys handles GET /v2/journeys
func (h *Handler) Journeys(c *fiber.Ctx) error {
	fromID := c.Query("from")
	toID := c.Query("to")
	if fromID == "" || toID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing required parameters: from and to",
		})
	}

	departure, err := parseTimeParam(c.Query("departure"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid 'departure' time: %v", err),
		})
	}

	priorities := models.AllPriorities()
	if name := c.Query("priority"); name != "" {
		p, err := models.ParsePriority(name)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		priorities = []models.Priority{p}
	}

	from, err := h.Network.Stop(fromID)
	if err != nil {
		return networkError(c, err)
	}
	to, err := h.Network.Stop(toID)
	if err != nil {
		return networkError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.QueryTimeout)
	defer cancel()

	type journeyResult struct {
		priority models.Priority
		journey  *models.JourneyResult
		cached   bool
		err      error
	}

	// Every priority runs in parallel over the same loaded network
	resultChan := make(chan journeyResult, len(priorities))
	var wg sync.WaitGroup

	for _, p := range priorities {
		wg.Add(1)
		go func(p models.Priority) {
			defer wg.Done()
			journey, cached, err := h.computeJourney(ctx, p, fromID, toID, departure)
			resultChan <- journeyResult{priority: p, journey: journey, cached: cached, err: err}
		}(p)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	journeys := make(map[string]*models.JourneyResult)
	anyCached := false
	var lastErr error
	for result := range resultChan {
		if result.err != nil {
			log.Printf("Journey computation failed for %s: %v", result.priority, result.err)
			lastErr = result.err
			continue
		}
		if result.journey != nil {
			journeys[result.priority.String()] = result.journey
			anyCached = anyCached || result.cached
		}
	}
	c.Locals("cache_hit", anyCached)

	if len(journeys) == 0 {
		if errors.Is(lastErr, ErrQueryTimeout) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": lastErr.Error()})
		}
		if lastErr != nil {
			return networkError(c, lastErr)
		}
		return c.Status(404).JSON(fiber.Map{
			"error": "no journey found",
		})
	}

	return c.JSON(JourneysResponse{
		From:      from,
		To:        to,
		Departure: departure,
		Journeys:  journeys,
	})
}

// computeJourney returns the journey for priority, from the cache when
// possible. A nil journey means the target is unreachable.
func (h *Handler) computeJourney(ctx context.Context, priority models.Priority, from, to string, departure time.Time) (*models.JourneyResult, bool, error) {
	if h.Cache == nil {
		journey, err := h.scan(ctx, priority, from, to, departure)
		h.publish(priority, from, to, departure, journey, false)
		return journey, false, err
	}

	cacheKey := cache.JourneyKey(h.Network.Version(), from, to, departure, priority)

	if cached, err := h.Cache.GetJourney(ctx, cacheKey); err == nil && cached != nil {
		h.Metrics.ObserveCache(true)
		h.publish(priority, from, to, departure, cached, true)
		return nonEmpty(cached), true, nil
	}
	h.Metrics.ObserveCache(false)

	acquired, err := h.Cache.AcquireLock(ctx, cacheKey)
	if err != nil {
		log.Printf("Failed to acquire lock: %v", err)
		// Continue without lock (degrade gracefully)
	} else if !acquired {
		// Another request is computing this journey, wait for it
		cached, err := h.Cache.WaitForJourney(ctx, cacheKey, h.LockWait)
		if err == nil && cached != nil {
			h.publish(priority, from, to, departure, cached, true)
			return nonEmpty(cached), true, nil
		}
		// If waiting failed, compute anyway
	}

	defer func() {
		if acquired {
			if err := h.Cache.ReleaseLock(context.Background(), cacheKey); err != nil {
				log.Printf("Failed to release lock: %v", err)
			}
		}
	}()

	journey, err := h.scan(ctx, priority, from, to, departure)
	if err != nil {
		return nil, false, err
	}

	// Unreachable targets are cached too, as an empty result
	toCache := journey
	if toCache == nil {
		toCache = &models.JourneyResult{Priority: priority.String(), Legs: []models.Leg{}, Connections: []models.Connection{}}
	}
	if err := h.Cache.SetJourney(ctx, cacheKey, toCache); err != nil {
		log.Printf("Failed to cache journey: %v", err)
	}

	h.publish(priority, from, to, departure, journey, false)
	return journey, false, nil
}

// nonEmpty maps a cached unreachable result back to nil
func nonEmpty(j *models.JourneyResult) *models.JourneyResult {
	if len(j.Connections) == 0 {
		return nil
	}
	return j
}

// scan runs one engine. The engine itself cannot be interrupted: on timeout
// the request gives up and the sweep finishes in the background.
func (h *Handler) scan(ctx context.Context, priority models.Priority, from, to string, departure time.Time) (*models.JourneyResult, error) {
	type scanResult struct {
		journey []models.Connection
		err     error
	}

	done := make(chan scanResult, 1)
	start := time.Now()
	go func() {
		journey, err := h.Network.Plan(priority, from, to, departure)
		done <- scanResult{journey, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrQueryTimeout
		}
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		h.Metrics.ObserveScan(priority.String(), time.Since(start), len(r.journey) > 0)
		if len(r.journey) == 0 {
			return nil, nil
		}
		return routing.Result(priority, r.journey), nil
	}
}

// publish announces a journey; failures are logged and never fail the request
func (h *Handler) publish(priority models.Priority, from, to string, departure time.Time, journey *models.JourneyResult, cached bool) {
	if h.Publisher == nil || journey == nil || len(journey.Connections) == 0 {
		return
	}

	ev := publisher.JourneyEvent{
		From:          from,
		To:            to,
		Priority:      priority.String(),
		RequestedAt:   departure,
		DepartureTime: journey.DepartureTime,
		ArrivalTime:   journey.ArrivalTime,
		Transfers:     journey.Transfers,
		Connections:   len(journey.Connections),
		Cached:        cached,
	}
	if err := h.Publisher.PublishJourney(ev); err != nil {
		log.Printf("Warning: failed to publish journey event: %v", err)
	}
}

// Health handles the /health endpoint
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	checks := fiber.Map{}
	degraded := false

	if h.DBCheck != nil {
		dbStatus := "ok"
		if err := h.DBCheck(ctx); err != nil {
			dbStatus = err.Error()
			degraded = true
		}
		checks["database"] = dbStatus
	}

	if h.Cache != nil {
		redisStatus := "ok"
		if err := h.Cache.HealthCheck(ctx); err != nil {
			redisStatus = err.Error()
			degraded = true
		}
		checks["redis"] = redisStatus
	}

	stats := h.Network.Stats()
	networkStatus := "ok"
	if !stats.Loaded {
		networkStatus = network.ErrNotLoaded.Error()
	}
	checks["network"] = networkStatus

	body := fiber.Map{
		"checks":  checks,
		"network": stats,
	}

	if h.LastImport != nil {
		if last, err := h.LastImport(ctx); err != nil {
			log.Printf("Warning: %v", err)
		} else if last != nil {
			body["last_import"] = last
		}
	}

	// Without a network nothing can be served; a missing cache or database
	// only degrades the service
	status := "healthy"
	httpStatus := 200
	switch {
	case !stats.Loaded:
		status = "unhealthy"
		httpStatus = 503
	case degraded:
		status = "degraded"
	}
	body["status"] = status

	return c.Status(httpStatus).JSON(body)
}

// networkError translates network errors to HTTP responses
func networkError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, network.ErrUnknownStop):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, network.ErrNotLoaded):
		return c.Status(503).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, routing.ErrUnsupportedPriority):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return err
}

// parseTimeParam parses an RFC3339 time, defaulting to now when empty
func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339")
	}
	return t.UTC(), nil
}

// ErrorHandler turns errors returned by handlers into JSON responses
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
