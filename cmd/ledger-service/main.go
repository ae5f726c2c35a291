package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-seatledger/internal/auth"
	"ms-seatledger/internal/config"
	"ms-seatledger/internal/database/migrations"
	"ms-seatledger/internal/inventory"
	"ms-seatledger/internal/inventory/qr"
	"ms-seatledger/internal/kafka"
	"ms-seatledger/internal/ledger_api"
	"ms-seatledger/internal/logger"
	"ms-seatledger/internal/ops"
	"ms-seatledger/internal/quota"
	"ms-seatledger/internal/summary"
	"ms-seatledger/internal/txlog"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	if err := migrations.Run(sqldb, migrations.DefaultOptions()); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}

	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("DATABASE", fmt.Sprintf("Redis unavailable, summaries will be uncached: %v", err))
		return nil
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

// runExpirySweep periodically expires overdue ACTIVE tickets and returns
// their quota to the issuing stores.
func runExpirySweep(ctx context.Context, facade *ops.Facade, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := facade.ExpireOverdue(ctx, "system:expiry-sweep")
			if err != nil {
				log.Error("PROCESS", fmt.Sprintf("Expiry sweep failed: %v", err))
				continue
			}
			if len(result.AffectedTicketIDs) > 0 {
				log.LogProcess("EXPIRY_SWEEP", fmt.Sprintf("Expired %d overdue tickets", len(result.AffectedTicketIDs)))
			}
		}
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Seat Ledger Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.TicketTopic}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TicketTopic)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for topic %s", cfg.Kafka.TicketTopic))
	} else {
		log.Warn("KAFKA", "Kafka disabled, ledger events will not be published")
	}

	if cfg.Ledger.QRSecret == "" {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, issued tickets will not carry QR codes")
	}
	var qrGen *qr.QRGenerator
	if cfg.Ledger.QRSecret != "" {
		qrGen = qr.NewQRGenerator(cfg.Ledger.QRSecret)
	}

	cache := summary.NewCache(redisClient)

	// The facade takes an interface for events; a typed nil *Producer must
	// not sneak into it.
	var events ops.EventPublisher
	if producer != nil {
		events = producer
	}
	facade := ops.NewFacade(bunDB, qrGen, events, cache, log)

	quotaService := quota.NewService(&quota.DB{Bun: bunDB})
	inventoryService := inventory.NewService(&inventory.DB{Bun: bunDB}, qrGen)
	summaryService := summary.NewService(&summary.DB{Bun: bunDB}, quotaService, cache)
	txlogService := txlog.NewService(&txlog.DB{Bun: bunDB})

	handler := ledger_api.NewHandler(facade, inventoryService, summaryService, txlogService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
			log.Info("AUTH", "OIDC middleware applied to API routes")
		} else {
			log.Warn("AUTH", "Authentication disabled, tokens parsed without verification")
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					actorID, role := "dev", auth.RoleAdmin
					if raw, err := auth.ExtractTokenFromRequest(req); err == nil {
						if sub, tokenRole, err := auth.ExtractActorFromJWT(raw); err == nil {
							actorID, role = sub, tokenRole
						}
					}
					next.ServeHTTP(w, req.WithContext(auth.WithActor(req.Context(), actorID, role)))
				})
			})
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/tickets", func(r chi.Router) {
				r.Post("/grant", handler.GrantTickets)
				r.Post("/use", handler.UseTicket)
				r.Post("/bulk", handler.BulkOperation)
				r.Post("/transfer", handler.TransferTicket)
				r.Get("/user/{userID}", handler.UserStats)
				r.Get("/user/{userID}/tickets", handler.ListUserTickets)
			})
			log.Info("ROUTER", "Ticket routes registered under /api/v1/tickets")

			r.Route("/distributions", func(r chi.Router) {
				r.Post("/", handler.Distribute)
				r.Get("/summary/tournament/{tournamentID}", handler.TournamentSummary)
				r.Get("/summary/store/{storeID}", handler.StoreSummary)
				r.Get("/summary/overall", handler.OverallSummary)
			})
			log.Info("ROUTER", "Distribution routes registered under /api/v1/distributions")

			r.Get("/transactions", handler.ListTransactions)
			log.Info("ROUTER", "Transaction log endpoint registered at /api/v1/transactions")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go runExpirySweep(ctx, facade, cfg.Ledger.ExpirySweepInterval, log)
	log.Info("PROCESS", fmt.Sprintf("Expiry sweep running every %s", cfg.Ledger.ExpirySweepInterval))

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Seat Ledger Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Seat Ledger Service shutdown complete")
	}
}
