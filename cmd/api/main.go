package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/connscan/internal/api"
	"github.com/passbi/connscan/internal/cache"
	"github.com/passbi/connscan/internal/config"
	"github.com/passbi/connscan/internal/db"
	"github.com/passbi/connscan/internal/metrics"
	"github.com/passbi/connscan/internal/middleware"
	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/network"
	"github.com/passbi/connscan/internal/publisher"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file (optional)")
	flag.Parse()

	log.Println("Starting connscan API server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration: Source=%s, Cache=%v, RateLimit=%v, Auth=%v, NATS=%v",
		cfg.Network.Source, cfg.Cache.Enabled, cfg.RateLimit.Enabled, cfg.Auth.Enabled, cfg.NATS.Enabled)

	collector := metrics.NewCollector()
	deps := api.Deps{
		Metrics:             collector,
		QueryTimeout:        cfg.Routing.QueryTimeout,
		MinimumTransferTime: &cfg.Routing.MinimumTransferTime,
		LockWait:            cfg.Cache.LockTimeout,
	}

	// Initialize database connection when the network lives there
	var pool *pgxpool.Pool
	if cfg.Network.Source == config.SourceDB {
		pool, err = db.Open(context.Background(), cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		log.Println("✓ Database connection established")

		deps.DBCheck = func(ctx context.Context) error {
			return db.Check(ctx, pool)
		}
		deps.LastImport = func(ctx context.Context) (*models.ImportLog, error) {
			return db.LatestImport(ctx, pool)
		}
	}

	// Load the timetable into memory
	net := network.New(cfg.Routing.MinimumTransferTime)
	if err := loadNetwork(cfg, net, pool, collector); err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}
	log.Println("✓ Network loaded into memory")
	deps.Network = net

	stopReload := make(chan struct{})
	if cfg.Network.Reload > 0 {
		go reloadLoop(cfg, net, pool, collector, stopReload)
	}

	// Redis is optional: without it every query is computed
	if cfg.Cache.Enabled {
		if rdb, err := cache.GetClient(); err != nil {
			log.Printf("Warning: Redis unavailable, caching disabled: %v", err)
		} else {
			defer cache.Close()
			deps.Cache = cache.NewStore(rdb, cfg.Cache.TTL, cfg.Cache.LockTimeout)
			log.Println("✓ Redis connection established")
		}
	}

	if cfg.NATS.Enabled {
		pub, err := publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, collector)
		if err != nil {
			log.Printf("Warning: NATS unavailable, journey events disabled: %v", err)
		} else {
			defer pub.Close()
			deps.Publisher = pub
			log.Println("✓ NATS connection established")
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "connscan API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: api.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.AnalyticsMiddleware(collector))

	app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))

	// /v2 middleware: authenticate first so limits apply per key
	var guards []fiber.Handler
	if cfg.Auth.Enabled {
		guards = append(guards, middleware.AuthMiddleware(cfg.Auth.APIKeys))
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		defer limiter.Stop()
		limiter.OnReject = collector.RateLimitRejected.Inc
		guards = append(guards, limiter.Handler())
	}

	api.NewHandler(deps).Register(app, guards...)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		close(stopReload)
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📍 Journeys: http://localhost%s/v2/journeys?from=STOP&to=STOP&departure=RFC3339", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadNetwork loads the timetable from the configured source
func loadNetwork(cfg *config.Config, net *network.Network, pool *pgxpool.Pool, collector *metrics.Collector) error {
	var err error
	switch cfg.Network.Source {
	case config.SourceDB:
		var day time.Time
		if day, err = cfg.ServiceDate(time.Now()); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			err = net.LoadFromDB(ctx, pool, day)
			cancel()
		}
	case config.SourceGTFS:
		var day time.Time
		if day, err = cfg.ServiceDate(time.Now()); err == nil {
			err = net.LoadFromGTFS(cfg.Network.GTFSPath, day, cfg.Location(), cfg.Network.MergeDistance)
		}
	case config.SourceJSON:
		err = net.LoadFromJSON(cfg.Network.JSONPath)
	default:
		err = fmt.Errorf("unknown network source %q", cfg.Network.Source)
	}

	stats := net.Stats()
	collector.ObserveLoad(stats.Stops, stats.Connections, err)
	return err
}

// reloadLoop reloads the network periodically. A failed reload keeps the
// previous network.
func reloadLoop(cfg *config.Config, net *network.Network, pool *pgxpool.Pool, collector *metrics.Collector, stop <-chan struct{}) {
	ticker := time.NewTicker(cfg.Network.Reload)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := loadNetwork(cfg, net, pool, collector); err != nil {
				log.Printf("Warning: network reload failed, keeping version %s: %v", net.Version(), err)
			}
		case <-stop:
			return
		}
	}
}
