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

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/idempotency"
	"storefront/internal/middleware"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/orders"
	"storefront/internal/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	config.Load()
	cfg := config.AppEnv

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	consistency, err := orders.ParseConsistency(cfg.Orders.Consistency)
	if err != nil {
		log.Fatal(err)
	}

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(cfg.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureIndexes(db); err != nil {
		log.Println("[DB] [WARN] index warning:", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal(err)
	}

	sink := buildSink(cfg.Mail)
	templates := notify.Templates{Brand: cfg.Mail.FromName}
	policy := notify.DefaultRetryPolicy(cfg.Notify.MaxAttempts)

	var queue notify.Queue
	var rabbit *notify.RabbitQueue
	if cfg.RabbitMQURL != "" {
		rabbit, err = notify.DialRabbit(cfg.RabbitMQURL, cfg.Notify.QueueName, sink, policy)
		if err != nil {
			log.Fatal(err)
		}
		queue = rabbit
		log.Println("[NOTIFY] [INFO] using rabbitmq queue:", cfg.Notify.QueueName)
	} else {
		queue = notify.NewDispatcher(sink, cfg.Notify.Workers, cfg.Notify.QueueSize, policy)
		log.Println("[NOTIFY] [INFO] using in-process dispatcher")
	}

	var publisher events.Publisher = events.Discard{}
	var kafka *events.KafkaPublisher
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafka = events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		publisher = kafka
		log.Println("[EVENTS] [INFO] publishing order events to topic:", cfg.KafkaTopic)
	}

	var keys handlers.IdempotencyKeys
	var keyStore *idempotency.Store
	if cfg.RedisURL != "" {
		keyStore, err = idempotency.Dial(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		keys = keyStore
	}

	deps := orders.Deps{
		Ledger:    repository.NewProductLedger(db),
		Store:     repository.NewOrderStore(db),
		Directory: repository.NewUserDirectory(db),
		Notifier:  queue,
		Events:    publisher,
		Templates: templates,
	}
	if consistency == orders.ConsistencyTransaction {
		deps.Transactor = database.NewTransactor(client)
	}
	svc := orders.NewService(deps, orders.Policy{
		TrustClientTotal:   cfg.Orders.TrustClientTotal,
		AllowNegativeStock: cfg.Orders.AllowNegativeStock,
		Consistency:        consistency,
	})

	r := gin.Default()
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/health", handlers.Health(db))
	r.Static("/uploads", cfg.UploadDir)

	registerRoutes(r, routeDeps{
		db:        db,
		secret:    cfg.JWTSecret,
		tokens:    handlers.TokenConfig{Secret: cfg.JWTSecret, AccessTTL: cfg.AccessTokenTTL, RefreshTTL: cfg.RefreshTokenTTL},
		uploads:   handlers.NewUploadStorage(cfg.UploadDir, cfg.PublicBaseURL),
		orders:    svc,
		keys:      keys,
		sink:      sink,
		templates: templates,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Println("Server listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return queue.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Println("[SERVER] [ERROR]", err)
	}

	closeAll(client, kafka, keyStore, rabbit)
	log.Println("Server stopped")
}

func buildSink(mail config.Mail) notify.Sink {
	if mail.SMTPHost == "" {
		log.Println("[NOTIFY] [WARN] SMTP_HOST not set, emails are logged instead of sent")
		return notify.LogSink{}
	}
	sink, err := notify.NewSMTPSink(notify.SMTPConfig{
		Host:      mail.SMTPHost,
		Port:      mail.SMTPPort,
		Username:  mail.SMTPUser,
		Password:  mail.SMTPPassword,
		FromName:  mail.FromName,
		FromEmail: mail.FromEmail,
	})
	if err != nil {
		log.Fatal(err)
	}
	return sink
}

func closeAll(client *mongo.Client, kafka *events.KafkaPublisher, keys *idempotency.Store, rabbit *notify.RabbitQueue) {
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.Println("[EVENTS] [WARN] kafka close:", err)
		}
	}
	if keys != nil {
		if err := keys.Close(); err != nil {
			log.Println("[ORDER] [WARN] redis close:", err)
		}
	}
	if rabbit != nil {
		rabbit.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Println("[DB] [WARN] mongo disconnect:", err)
	}
}
