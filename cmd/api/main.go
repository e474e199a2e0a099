package main

import (
	"context"
	"fmt"
	"log"

	"commune-chat/config"
	"commune-chat/internal/auth"
	"commune-chat/internal/events"
	"commune-chat/internal/feed"
	"commune-chat/internal/handler"
	"commune-chat/internal/presence"
	"commune-chat/internal/repository"
	"commune-chat/internal/server"
	"commune-chat/internal/session"
	"commune-chat/internal/storage"
	"commune-chat/internal/store"
	"commune-chat/internal/synccache"
	"commune-chat/internal/typing"
	"commune-chat/pkg/database"
	"commune-chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	defer l.Logger.Sync()
	logger.SetGlobalLogger(l)

	database.Connect(cfg)
	defer database.Close()

	if err := database.Migrate(database.DB); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	convRepo := repository.NewConversationRepository(database.DB)
	msgRepo := repository.NewMessageRepository(database.DB)
	presenceRepo := repository.NewPresenceRepository(database.DB)
	typingRepo := repository.NewTypingRepository(database.DB)
	profileRepo := repository.NewProfileRepository(database.DB)

	publisher := events.NewPublisher(redisClient, l)
	changeFeed := feed.NewRedisFeed(redisClient, l)
	changeFeed.Start()
	defer changeFeed.Close()

	cache := synccache.New(l)

	conversations := store.NewConversationStore(convRepo, msgRepo, profileRepo, publisher, l)
	messages := store.NewMessageStore(msgRepo, convRepo, profileRepo, publisher, l)
	queries := store.NewQueries(cache, conversations, messages, l)

	tracker := presence.NewTracker(presenceRepo, profileRepo, publisher, cfg.HeartbeatInterval, cfg.StalenessWindow(), l)
	coordinator := typing.NewCoordinator(typingRepo, profileRepo, publisher, cfg.TypingTTL, l)

	provider := auth.NewProvider(cfg.JWTSecret)
	sessions := session.NewManager(provider, tracker, changeFeed, cache, l)
	sessions.Start()

	var s3Client *storage.Client
	if cfg.S3Bucket != "" {
		var err error
		s3Client, err = storage.NewClient(context.Background(), storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
		})
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Conversation: handler.NewConversationHandler(conversations, queries),
		Message:      handler.NewMessageHandler(messages, queries),
		Realtime:     handler.NewRealtimeHandler(coordinator, tracker, conversations),
		Session:      handler.NewSessionHandler(provider),
		Upload:       handler.NewUploadHandler(s3Client),
		Stream:       server.NewStreamHandler(provider, sessions, changeFeed, cache, conversations, coordinator, l),
	}, provider)

	if err := srv.Start(sessions.Stop); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
