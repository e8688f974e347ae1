package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"github.com/rishabh1721/WanderLust/internal/broadcast"
	"github.com/rishabh1721/WanderLust/internal/config"
	"github.com/rishabh1721/WanderLust/internal/handlers/apiserver"
	"github.com/rishabh1721/WanderLust/internal/handlers/chatserver"
	appKafka "github.com/rishabh1721/WanderLust/internal/kafka"
	"github.com/rishabh1721/WanderLust/internal/middleware"
	appRedis "github.com/rishabh1721/WanderLust/internal/redis"
	"github.com/rishabh1721/WanderLust/internal/services"
	"github.com/rishabh1721/WanderLust/internal/storage"
	"github.com/rishabh1721/WanderLust/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// 2. Initialize the database
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database ready.")

	// 3. Initialize Redis (token blacklist and presence)
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis.")

	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)
	presence := appRedis.NewRedisPresence(redisClient, cfg.Redis.PresenceTTL)

	// 4. Initialize repositories
	userRepo := storage.NewGormUserRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	msgRepo := storage.NewGormMessageRepository(db)
	listingRepo := storage.NewGormListingRepository(db)
	bookingRepo := storage.NewGormBookingRepository(db)

	// 5. Initialize attachment storage
	storageBaseURL := "/uploads"
	var blobStore storage.BlobStore
	switch cfg.Storage.Type {
	case "local":
		blobStore, err = storage.NewLocalBlobStore(cfg.Storage, storageBaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
	default:
		log.Fatalf("Unsupported storage type: %s", cfg.Storage.Type)
	}

	// 6. Initialize the realtime hub and the Kafka-backed broadcaster
	hub := ws.NewHub()

	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("Failed to create Kafka producer: %v", err)
	}
	defer kfkProducer.Close()

	kfkConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("Failed to create Kafka consumer: %v", err)
	}
	defer kfkConsumer.Close()

	broadcaster := broadcast.NewKafkaBroadcaster(hub, kfkProducer, kfkConsumer, cfg.Kafka)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	go func() {
		if err := broadcaster.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Event relay consumer stopped: %v", err)
		}
	}()

	// 7. Initialize services
	authService := services.NewAuthService(userRepo, cfg)
	messagingService := services.NewMessagingService(
		convoRepo, msgRepo, userRepo, listingRepo, bookingRepo,
		blobStore, broadcaster, presence, cfg,
	)

	// 8. Initialize handlers
	authHandler := apiserver.NewAuthHandler(authService, tokenBlacklist)
	messageHandler := apiserver.NewMessageHandler(messagingService)
	wsHandler := chatserver.NewWebSocketHandler(hub, messagingService, broadcaster, presence, tokenBlacklist, cfg)

	// 9. Routes
	r := mux.NewRouter()

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	authMW := func(next http.Handler) http.Handler {
		return middleware.AuthMiddleware(next, cfg.Auth, tokenBlacklist)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(authMW)
	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	apiRouter.HandleFunc("/messages", messageHandler.Inbox).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/unread-count", messageHandler.UnreadCount).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/user/{userId:[0-9]+}", messageHandler.OpenConversation).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/user/{userId:[0-9]+}", messageHandler.SendToUser).Methods(http.MethodPost)
	apiRouter.HandleFunc("/messages/conversation/{id:[0-9]+}", messageHandler.GetConversation).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/conversation/{id:[0-9]+}", messageHandler.SendToConversation).Methods(http.MethodPost)
	apiRouter.HandleFunc("/messages/conversation/{id:[0-9]+}/read", messageHandler.MarkRead).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/messages/conversation/{id:[0-9]+}/archive", messageHandler.Archive).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/messages/conversation/{id:[0-9]+}/unarchive", messageHandler.Unarchive).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/messages/message/{id:[0-9]+}", messageHandler.DeleteMessage).Methods(http.MethodDelete)

	// Realtime gateway; authentication happens inside the handler so
	// unauthenticated clients still get a degraded connection.
	r.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	// Uploaded attachments
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(storageBaseURL, "/") + "/"
		localDir := http.Dir(cfg.Storage.LocalPath)
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(localDir)))
		log.Printf("Serving attachments at %s -> %s", staticPath, cfg.Storage.LocalPath)
	}

	// 10. CORS
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.CORS.MaxAge),
	}
	if cfg.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	// 11. Start the HTTP server with graceful shutdown
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("Server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping server...")

	cancelConsumer()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}

	log.Println("Server stopped.")
}
