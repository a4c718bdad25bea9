package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// ErrLockTimeout is returned when a journey lock is not released in time
var ErrLockTimeout = errors.New("timeout waiting for lock")

// Config holds Redis configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	MutexTTL time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, _ := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	mutexTTL, _ := time.ParseDuration(getEnv("CACHE_MUTEX_TTL", "5s"))

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
		MutexTTL: mutexTTL,
	}
}

// GetClient returns the global Redis client (singleton pattern)
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}

		// Enable TLS if configured (required for Upstash)
		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}
	})

	return client, clientErr
}

// Close closes the Redis client
func Close() {
	if client != nil {
		client.Close()
	}
}

// JourneyKey generates a cache key for a journey query.
// version identifies the loaded timetable so a reload never serves stale
// journeys.
func JourneyKey(version, from, to string, departure time.Time, priority models.Priority) string {
	data := fmt.Sprintf("%s|%s|%s|%d", version, from, to, departure.UnixMilli())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("journey:%x:%s", hash[:8], priority)
}

// LockKey generates a mutex lock key
func LockKey(journeyKey string) string {
	return fmt.Sprintf("lock:%s", journeyKey)
}

// Store caches computed journeys in Redis
type Store struct {
	client   *redis.Client
	ttl      time.Duration
	mutexTTL time.Duration
}

// NewStore wraps client. Zero durations fall back to the environment config.
func NewStore(client *redis.Client, ttl, mutexTTL time.Duration) *Store {
	config := LoadConfigFromEnv()
	if ttl <= 0 {
		ttl = config.TTL
	}
	if mutexTTL <= 0 {
		mutexTTL = config.MutexTTL
	}
	return &Store{client: client, ttl: ttl, mutexTTL: mutexTTL}
}

// GetJourney retrieves a cached journey. A miss returns nil and no error.
func (s *Store) GetJourney(ctx context.Context, key string) (*models.JourneyResult, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var journey models.JourneyResult
	if err := json.Unmarshal(data, &journey); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached journey: %w", err)
	}

	return &journey, nil
}

// SetJourney caches a journey
func (s *Store) SetJourney(ctx context.Context, key string, journey *models.JourneyResult) error {
	data, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}

	return s.client.Set(ctx, key, data, s.ttl).Err()
}

// AcquireLock attempts to acquire the lock guarding key's computation.
// Returns true if lock was acquired, false if already locked.
func (s *Store) AcquireLock(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, LockKey(key), "1", s.mutexTTL).Result()
}

// ReleaseLock releases the lock guarding key's computation
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, LockKey(key)).Err()
}

// WaitForJourney waits for the lock on key to be released and then
// retrieves the result. This avoids a thundering herd on popular queries.
func (s *Store) WaitForJourney(ctx context.Context, key string, maxWait time.Duration) (*models.JourneyResult, error) {
	lockKey := LockKey(key)
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		exists, err := s.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}

		if exists == 0 {
			return s.GetJourney(ctx, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return nil, ErrLockTimeout
}

// HealthCheck performs a health check on the Redis connection
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// Stats returns Redis pool stats
func (s *Store) Stats() map[string]interface{} {
	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
