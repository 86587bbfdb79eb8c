package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nesugoshipanic/internal/cache"
	"nesugoshipanic/internal/config"
	"nesugoshipanic/internal/repository"
	"nesugoshipanic/internal/service"
	"nesugoshipanic/internal/token"
	"nesugoshipanic/internal/transport/linebot"
	"nesugoshipanic/internal/transport/rest"

	"github.com/joho/godotenv"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping MongoDB")
	}
	logger.Info().Msg("connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping Redis")
	}
	logger.Info().Msg("connected to Redis")

	// LINE Messaging API client
	bot, err := messaging_api.NewMessagingApiAPI(cfg.LineChannelToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create LINE client")
	}

	// Repositories and caches
	sessionRepo := repository.NewSessionRepo(db)
	userRepo := repository.NewUserRepo(db)
	leaderboard := cache.NewLeaderboardCache(rdb)
	dedup := cache.NewDedupCache(rdb)

	gen, err := token.NewGenerator(cfg.TokenAlphabet, cfg.TokenLength)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token configuration")
	}

	mailer := service.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, logger)
	if !mailer.Enabled() {
		logger.Warn().Msg("SMTP not configured, game URL mails are disabled")
	}

	gameSvc := service.NewGameService(
		sessionRepo, userRepo, leaderboard, gen, mailer,
		cfg.Stage1GameURL, cfg.Stage3GameURL, logger,
	)

	lineCfg := linebot.Config{
		ChannelSecret:      cfg.LineChannelSecret,
		LoginChannelID:     cfg.LineLoginChannelID,
		LoginChannelSecret: cfg.LineLoginChannelSecret,
		LoginRedirectURL:   cfg.LineLoginRedirectURL,
		Stage3GameURL:      cfg.Stage3GameURL,
	}
	gameSvc.SetNotifier(linebot.NewNotifier(bot, cfg.Stage3GameURL, logger))
	webhookHandler := linebot.NewHandler(lineCfg, bot, gameSvc, dedup, logger)
	loginHandler := linebot.NewLoginHandler(lineCfg, gameSvc, logger)

	router := rest.NewRouter(&rest.Container{
		GameService:   gameSvc,
		Webhook:       webhookHandler,
		LoginCallback: loginHandler,
		AdminAPIKey:   cfg.AdminAPIKey,
		Stage3GameURL: cfg.Stage3GameURL,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server exited")
}
