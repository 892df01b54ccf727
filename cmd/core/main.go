package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/emeraldgrove/arcade/internal/bus"
	"github.com/emeraldgrove/arcade/internal/config"
	"github.com/emeraldgrove/arcade/internal/database"
	"github.com/emeraldgrove/arcade/internal/dispatcher"
	"github.com/emeraldgrove/arcade/internal/handlers"
	mW "github.com/emeraldgrove/arcade/internal/middleware"
	"github.com/emeraldgrove/arcade/internal/services"
	"github.com/emeraldgrove/arcade/internal/store"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize storage and the station bus
	db := database.InitDatabase()
	defer db.Close()

	redisClient, err := database.InitRedis()
	if err != nil {
		log.Fatalf("Failed to connect to message bus: %v", err)
	}
	defer redisClient.Close()

	busCfg := config.LoadBusConfig()
	stationBus := bus.New(redisClient, busCfg.Namespace)

	ledger := store.NewLedger(db)
	walletService := services.NewWalletService(ledger)
	payoutService := services.NewPayoutService(ledger)
	voteController := services.NewVoteController(ledger)

	// Start the dispatcher: the single worker that owns all economic
	// mutation order.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := dispatcher.New(busCfg, stationBus, stationBus, walletService, payoutService, voteController, ledger)
	go func() {
		if err := disp.Run(ctx); err != nil && err != context.Canceled {
			log.Fatalf("Dispatcher stopped: %v", err)
		}
	}()

	adminHandler := handlers.NewAdminHandler(busCfg, ledger, voteController, stationBus)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Device front-ends
	r.Get("/", adminHandler.Index)
	r.Handle("/web/*", http.StripPrefix("/web/", mW.StaticFileServer("./web")))

	// Admin API
	r.Route("/api", func(r chi.Router) {
		if viper.GetString("jwt.secret_key") != "" {
			r.Use(mW.AuthMiddleware)
		}

		r.Get("/mode", adminHandler.Mode)
		r.Post("/mode", adminHandler.SetMode)
		r.Post("/night/step", adminHandler.NightStep)
		r.Get("/night/votes", adminHandler.Votes)
		r.Get("/wallets", adminHandler.Wallets)
		r.Get("/log", adminHandler.Log)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
