package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoswap/internal/bot"
	"cryptoswap/internal/config"
	"cryptoswap/internal/database"
	"cryptoswap/internal/fee"
	"cryptoswap/internal/handler"
	"cryptoswap/internal/middleware"
	"cryptoswap/internal/notify"
	"cryptoswap/internal/order"
	"cryptoswap/internal/pricing"
	"cryptoswap/internal/referral"
	"cryptoswap/internal/sweeper"
	"cryptoswap/internal/wallet"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	app, err := config.LoadApp(cfg.AppConfigPath)
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	wallets, err := wallet.NewDirectory(app.Wallets)
	if err != nil {
		return err
	}

	oracle := pricing.NewOracle(app.Pricing, logger.Named("pricing"))

	var (
		sink     notify.Sink = notify.Nop{}
		api      *tgbotapi.BotAPI
		telegram *notify.Telegram
	)
	if app.Telegram.Enabled {
		api, err = tgbotapi.NewBotAPI(app.Telegram.BotToken)
		if err != nil {
			return err
		}
		api.Debug = cfg.Development()
		telegram = notify.NewTelegram(api, app.Telegram, app.Pricing.Currency, logger.Named("notify"))
		sink = telegram
		logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	}

	ledger := referral.NewLedger(db, sink, logger.Named("referral"), time.Now)
	orders := order.NewManager(db, fee.NewCalculator(app.Fees.FeeRate()), oracle, wallets, ledger, sink, logger.Named("order"),
		order.Options{DraftTTL: app.Fees.DraftTTL(), ReferralRate: app.Fees.ReferralRate()})

	scheduler, err := sweeper.New(orders, oracle, app.Sweeper.Schedule, app.Pricing.RefreshSchedule, logger.Named("sweeper"), time.Now)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshCtx, cancel := context.WithTimeout(ctx, app.Pricing.Timeout())
	if err := oracle.Refresh(refreshCtx); err != nil {
		logger.Warn("Initial price refresh failed, using configured prices", zap.Error(err))
	}
	cancel()

	h := handler.NewHandler(orders, ledger, oracle, wallets, scheduler,
		handler.Options{
			AdminAPIKey:   app.AdminAPIKey,
			ServiceAPIKey: app.ServiceAPIKey,
			Currency:      app.Pricing.Currency,
		}, logger.Named("http"))
	router := setupRouter(cfg, app, h, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if api != nil {
		b := bot.New(api, orders, ledger, bot.Config{
			Username:       api.Self.UserName,
			Currency:       app.Pricing.Currency,
			SupportContact: app.SupportContact,
			AdminChatID:    app.Telegram.AdminChatID,
		}, logger.Named("bot"))
		g.Go(func() error {
			return b.Run(gctx)
		})
	}
	scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		scheduler.Stop(shutdownCtx)
		if telegram != nil {
			telegram.Close()
		}
		return err
	})

	return g.Wait()
}

func setupRouter(cfg *config.Config, app *config.AppConfig, h *handler.Handler, logger *zap.Logger) *gin.Engine {
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Metrics(),
		middleware.Cors(app.CORS),
		middleware.RateLimit(app.RateLimit),
	)

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Register(router.Group("/api/v1"))
	return router
}
