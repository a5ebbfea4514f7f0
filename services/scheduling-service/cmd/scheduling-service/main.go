package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotline/slotline/libs/config"
	"github.com/slotline/slotline/libs/db"
	"github.com/slotline/slotline/libs/httpx"
	"github.com/slotline/slotline/libs/kafkax"
	otelx "github.com/slotline/slotline/libs/otel"
	"github.com/slotline/slotline/libs/runtime"
	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/cache"
	"github.com/slotline/slotline/services/scheduling-service/internal/handlers"
	"github.com/slotline/slotline/services/scheduling-service/internal/outbox"
	"github.com/slotline/slotline/services/scheduling-service/internal/reminder"
	"github.com/slotline/slotline/services/scheduling-service/internal/storage"
	"github.com/slotline/slotline/services/scheduling-service/internal/sweep"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = reminder.DefaultOffsets
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	appts := storage.NewAppointmentRepository(pool, outboxRepo)
	rules := storage.NewRuleRepository(pool)
	users := storage.NewUserRepository(pool)
	reminderRepo := reminder.NewRepository(pool)

	var slotCache booking.SlotCache = booking.NopCache{}
	var rdb *redis.Client
	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer rdb.Close()
		slotCache = cache.New(rdb, logger, config.Duration("SLOT_CACHE_TTL", 5*time.Minute))
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info("slot cache enabled (redis)", "addr", redisAddr)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)
	reminders := reminder.NewScheduler(reminderRepo, logger, offsets)

	coord := booking.NewCoordinator(appts, rules, reminders, slotCache, logger)
	resolver := booking.NewAvailabilityResolver(appts, rules, slotCache)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminder.NewWorker(pool, reminderRepo, appts, outboxRepo, logger, reminder.WorkerConfig{
		Interval: config.Duration("REMINDER_SWEEP_EVERY", 30*time.Second),
	})
	go reminderWorker.Run(ctx)

	sweeper := sweep.New(coord, logger, sweep.Config{
		Interval: config.Duration("COMPLETION_SWEEP_EVERY", time.Minute),
	})
	go sweeper.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(coord, resolver, appts, logger)
	providerHandler := handlers.NewProviderHandler(rules, slotCache, logger)
	authHandler := handlers.NewAuthHandler(users, logger, jwtSecret, config.Duration("ACCESS_TOKEN_TTL", 24*time.Hour))

	// Credential endpoints get a tighter per-client limit than the rest of
	// the API. The Redis limiter is shared across replicas; the in-memory
	// one covers single-instance deployments without Redis.
	authLimit := config.Int("AUTH_RATE_LIMIT", 20)
	var limitAuth httpx.Middleware
	if rdb != nil {
		limitAuth = httpx.NewRedisRateLimiter(rdb, authLimit, time.Minute, "auth").Middleware(logger, true)
	} else {
		limitAuth = httpx.NewRateLimiter(authLimit, time.Minute).Middleware()
	}

	requireAuth := handlers.RequireAuth(jwtSecret)
	mux := runtime.NewBaseMux(readyChecks...)
	mux.Handle("/api/v1/auth/register", limitAuth(http.HandlerFunc(authHandler.Register)))
	mux.Handle("/api/v1/auth/login", limitAuth(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("/api/v1/slots", bookingHandler.Slots)
	mux.Handle("/api/v1/bookings", requireAuth(http.HandlerFunc(bookingHandler.Create)))
	mux.Handle("/api/v1/bookings/cancel", requireAuth(http.HandlerFunc(bookingHandler.Cancel)))
	mux.Handle("/api/v1/bookings/reschedule", requireAuth(http.HandlerFunc(bookingHandler.Reschedule)))
	mux.Handle("/api/v1/appointments", requireAuth(http.HandlerFunc(bookingHandler.List)))
	mux.Handle("/api/v1/calendar", requireAuth(http.HandlerFunc(bookingHandler.Calendar)))
	mux.Handle("/api/v1/providers/rule", requireAuth(http.HandlerFunc(providerHandler.Rule)))
	mux.Handle("/api/v1/providers/holidays", requireAuth(http.HandlerFunc(providerHandler.Holidays)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
