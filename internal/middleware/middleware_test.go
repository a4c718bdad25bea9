package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "pk_test_0123456789abcdef"

func okHandler(c *fiber.Ctx) error { return c.SendString("ok") }

func TestAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(AuthMiddleware([]string{testKey}))
	app.Get("/", func(c *fiber.Ctx) error {
		client := c.Locals("client").(*ClientContext)
		return c.SendString(client.KeyPrefix)
	})

	tests := []struct {
		name   string
		header string
		status int
		errKey string
	}{
		{"Missing header", "", 401, "missing_api_key"},
		{"Wrong scheme", "Basic " + testKey, 401, "invalid_auth_format"},
		{"Wrong prefix", "Bearer sk_test_123", 401, "invalid_api_key_format"},
		{"Unknown key", "Bearer pk_test_unknown", 401, "invalid_api_key"},
		{"Valid key", "Bearer " + testKey, 200, ""},
		{"Case insensitive scheme", "bearer " + testKey, 200, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			body := string(raw)
			if tc.errKey != "" {
				assert.Contains(t, body, tc.errKey)
			} else {
				assert.Equal(t, KeyPrefix(testKey), body)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("live")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "pk_live_"))
	parts := strings.Split(key, "_")
	require.Len(t, parts, 4)
	assert.Len(t, parts[2], 64)
	assert.Len(t, parts[3], 4)

	other, err := GenerateAPIKey("live")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	assert.Len(t, HashAPIKey(key), 64)
	assert.Equal(t, "pk_live_"+parts[2][:4]+"...", KeyPrefix(key))
}

func TestRateLimiter(t *testing.T) {
	t.Run("Rejects past the burst", func(t *testing.T) {
		rl := NewRateLimiter(60, 2)
		defer rl.Stop()

		rejected := 0
		rl.OnReject = func() { rejected++ }

		app := fiber.New()
		app.Use(rl.Handler())
		app.Get("/", okHandler)

		statuses := []int{}
		for i := 0; i < 3; i++ {
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			statuses = append(statuses, resp.StatusCode)
			if resp.StatusCode == 429 {
				assert.Equal(t, "1", resp.Header.Get("Retry-After"))
			}
		}

		assert.Equal(t, []int{200, 200, 429}, statuses)
		assert.Equal(t, 1, rejected)
	})

	t.Run("Clients are limited separately", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)
		defer rl.Stop()

		app := fiber.New()
		app.Use(AuthMiddleware([]string{testKey, "pk_test_other"}))
		app.Use(rl.Handler())
		app.Get("/", okHandler)

		for _, key := range []string{testKey, "pk_test_other"} {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer "+key)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		}
		assert.Equal(t, 2, rl.Clients())
	})

	t.Run("Zero rate rejects everything", func(t *testing.T) {
		rl := NewRateLimiter(0, 1)
		defer rl.Stop()
		assert.Equal(t, 3600, rl.retryAfter())
	})

	t.Run("Idle clients are evicted", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)
		defer rl.Stop()

		now := time.Now()
		rl.now = func() time.Time { return now }
		rl.getLimiter("a")
		rl.getLimiter("b")

		now = now.Add(idleThreshold / 2)
		rl.getLimiter("b")

		now = now.Add(idleThreshold/2 + time.Second)
		rl.cleanupOnce()
		assert.Equal(t, 1, rl.Clients())
	})

	t.Run("Concurrent clients", func(t *testing.T) {
		rl := NewRateLimiter(600, 10)
		defer rl.Stop()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rl.getLimiter(string(rune('a' + i%5)))
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 5, rl.Clients())
	})

	t.Run("Stop is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)
		rl.Stop()
		rl.Stop()
	})
}

type observation struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{method, route, status})
}

func TestAnalyticsMiddleware(t *testing.T) {
	obs := &fakeObserver{}
	app := fiber.New()
	app.Use(AnalyticsMiddleware(obs))
	app.Get("/v2/stops/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return fiber.NewError(fiber.StatusNotFound, "unknown stop")
		}
		c.Locals("cache_hit", true)
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/v2/stops/A", nil))
	require.NoError(t, err)
	assert.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
	assert.NotEmpty(t, resp.Header.Get("X-Response-Time"))

	_, err = app.Test(httptest.NewRequest("GET", "/v2/stops/missing", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest("GET", "/nowhere", nil))
	require.NoError(t, err)

	assert.Equal(t, []observation{
		{"GET", "/v2/stops/:id", 200},
		{"GET", "/v2/stops/:id", 404},
		{"GET", "unmatched", 404},
	}, obs.obs)
}
