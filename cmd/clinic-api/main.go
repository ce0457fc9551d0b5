package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aluna-estetica/backend/internal/booking"
	"github.com/aluna-estetica/backend/internal/config"
	apihandlers "github.com/aluna-estetica/backend/internal/handlers"
	"github.com/aluna-estetica/backend/internal/httpx"
	"github.com/aluna-estetica/backend/internal/notify"
	"github.com/aluna-estetica/backend/internal/otelx"
	"github.com/aluna-estetica/backend/internal/payments"
	"github.com/aluna-estetica/backend/internal/runtime"
	"github.com/aluna-estetica/backend/internal/schedule"
	"github.com/aluna-estetica/backend/internal/xano"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "clinic-api")
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

	upstreamURL, err := config.RequiredString("XANO_BASE_URL")
	if err != nil {
		panic(err)
	}
	upstream := xano.New(xano.Options{
		BaseURL:   upstreamURL,
		Timeout:   config.Seconds("XANO_TIMEOUT_SECONDS", 2500*time.Millisecond),
		RetryWait: config.Seconds("XANO_RETRY_WAIT_SECONDS", 1500*time.Millisecond),
		Logger:    logger,
	})

	loc := time.UTC
	tzName := config.String("CLINIC_TZ", "America/Argentina/Buenos_Aires")
	if parsed, err := time.LoadLocation(tzName); err == nil {
		loc = parsed
	} else {
		logger.Warn("invalid CLINIC_TZ, using UTC", "tz", tzName)
	}

	hours := schedule.Config{
		OpenHour:        config.Int("BUSINESS_OPEN_HOUR", 9),
		CloseHour:       config.Int("BUSINESS_CLOSE_HOUR", 19),
		IntervalMinutes: config.Int("BUSINESS_SLOT_MINUTES", 60),
		ClosedWeekdays:  schedule.ParseClosedWeekdays(config.String("BUSINESS_CLOSED_WEEKDAYS", "0")),
	}

	caches := apihandlers.NewCaches(
		config.Seconds("APPOINTMENT_CACHE_TTL_SECONDS", 10*time.Second),
		config.Seconds("LIST_CACHE_TTL_SECONDS", 10*time.Second),
	)

	var notifier booking.Notifier
	if url := config.String("N8N_CANCEL_WEBHOOK_URL", ""); url != "" {
		notifier = notify.NewWebhook(url, logger)
		logger.Info("cancellation webhook enabled")
	}

	submitter := booking.NewSubmitter(upstream, hours, loc, caches.UserAppointments, notifier, logger)

	var pay *payments.Client
	if token := config.String("MP_ACCESS_TOKEN", ""); token != "" {
		pay, err = payments.New(payments.Config{
			AccessToken:     token,
			SuccessURL:      config.String("MP_SUCCESS_URL", ""),
			FailureURL:      config.String("MP_FAILURE_URL", ""),
			PendingURL:      config.String("MP_PENDING_URL", ""),
			NotificationURL: config.String("MP_NOTIFICATION_URL", ""),
		}, logger)
		if err != nil {
			logger.Error("mercado pago init failed; checkout disabled", "err", err)
			pay = nil
		} else {
			logger.Info("mercado pago checkout enabled")
		}
	}

	api := apihandlers.New(logger, upstream, submitter, pay, caches, apihandlers.Config{
		Hours:              hours,
		Location:           loc,
		TZName:             tzName,
		GlobalAvailability: config.Bool("FEATURE_GLOBAL_AVAILABILITY", false),
		CookieTTL:          config.Seconds("SESSION_COOKIE_TTL_SECONDS", 7*24*time.Hour),
		SecureCookies:      config.Bool("SECURE_COOKIES", true),
		ServiceToken:       config.String("XANO_SERVICE_TOKEN", ""),
	})

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(api.Router(),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,PATCH,DELETE,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			MaxAge:         config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)),
		rateLimitMW,
	)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger: logger}))(handler)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

type recoveryLogger struct {
	logger interface{ Error(string, ...any) }
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic recovered", "detail", v)
}
