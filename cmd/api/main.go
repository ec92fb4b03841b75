package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/cache"
	config "github.com/chainfundit/backend/configs"
	"github.com/chainfundit/backend/database"
	"github.com/chainfundit/backend/handlers"
	"github.com/chainfundit/backend/jobs"
	"github.com/chainfundit/backend/middleware"
	"github.com/chainfundit/backend/notifications"
	"github.com/chainfundit/backend/payments"
	"github.com/chainfundit/backend/routes"
	"github.com/chainfundit/backend/services"
	"github.com/chainfundit/backend/websocket"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.SeedAdmin(ctx, db, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminFullName, log); err != nil {
		return err
	}
	store := database.NewStore(db)

	routeTable := payments.DefaultRoutes()
	if cfg.PayoutRoutes != "" {
		if routeTable, err = payments.ParseRoutes(cfg.PayoutRoutes); err != nil {
			return err
		}
	}
	router := payments.NewRouter(routeTable)

	paystack := payments.NewPaystackAdapter(cfg.PaystackAPIURL, cfg.PaystackSecretKey, cfg.ProviderTimeout, log)
	adapters := []payments.Adapter{paystack}
	if cfg.StripeSecretKey != "" {
		adapters = append(adapters, payments.NewStripeAdapter(cfg.StripeSecretKey, cfg.StripeAPIURL, cfg.ProviderTimeout, log))
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, stripe payouts will fail")
	}

	hub := websocket.NewHub(middleware.AdminTokenAuthorizer(cfg.JWTSecret), log)
	go hub.Run(ctx)

	rates := services.NewRateService(cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey, log)
	geo, err := services.NewGeoService(cfg.GeoIPDBPath, log)
	if err != nil {
		return err
	}
	defer geo.Close()

	notifier := services.NewNotifier(store)
	processor := services.NewPayoutProcessor(store, router, adapters, notifier, hub, cfg.PayoutMaxRetries, log)
	requests := services.NewPayoutRequestService(store, store, rates, router, notifier, hub, cfg.PayoutFeeRate, log)
	referrals := services.NewReferralService(store, log)
	twoFactor := services.NewTwoFactorService(store)
	webhook := services.NewPaystackWebhook(cfg.PaystackSecretKey, store, paystack, referrals, hub, cfg.PayoutMaxRetries, log)

	var locker jobs.Locker = cache.NewLocalLocker()
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = cache.NewRedisLocker(client)
	}

	var limiter ratelimit.Limiter
	if cfg.PayoutProviderRPS > 0 {
		limiter = ratelimit.New(cfg.PayoutProviderRPS)
	}
	sweeper := jobs.NewPayoutRetrySweeper(store, processor, locker, limiter, jobs.SweeperConfig{
		MaxRetries: cfg.PayoutMaxRetries,
		RetryDelay: cfg.PayoutRetryDelay,
		BatchSize:  cfg.PayoutSweepBatch,
	}, log)

	var receipts jobs.ReceiptGenerator
	if cfg.CloudinaryURL != "" {
		uploader, err := services.NewCloudinaryUploader(cfg.CloudinaryURL)
		if err != nil {
			return err
		}
		receipts = services.NewReceiptService(services.ChromePDFRenderer{}, uploader, log)
	}
	mailer := notifications.NewMailer(cfg.ResendAPIKey, cfg.EmailSender, log)
	dispatcher := jobs.NewNotificationDispatcher(store, store, store, mailer, receipts, cfg.FrontendURL, log)

	scheduler, err := jobs.NewScheduler(ctx, jobs.Schedule{
		Sweep:         cfg.PayoutSweepSchedule,
		Notifications: cfg.NotificationSchedule,
		RateRefresh:   cfg.RateRefreshSchedule,
	}, sweeper, dispatcher, rates, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()
	go func() {
		if err := rates.Refresh(ctx); err != nil {
			log.Warn("initial exchange rate fetch failed", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:       "ChainFundIt",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	routes.AuthRoutes(app,
		handlers.NewAuthHandler(store, cfg.JWTSecret, log),
		handlers.NewAccountHandler(twoFactor, store, log),
		cfg.JWTSecret)
	routes.PayoutRoutes(app, handlers.NewPayoutHandler(requests, referrals, log), cfg.JWTSecret)
	routes.PublicRoutes(app, handlers.NewCurrencyHandler(rates, geo), handlers.NewWebhookHandler(webhook, log))
	routes.AdminRoutes(ctx, app,
		handlers.NewAdminHandler(requests, processor, sweeper, twoFactor, store, log),
		hub, cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("server listening", zap.String("port", cfg.Port))
	return app.Listen(":" + cfg.Port)
}
