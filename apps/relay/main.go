package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadline/chat-relay/pkg/auth"
	"github.com/threadline/chat-relay/pkg/db"
	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/presence"
	"github.com/threadline/chat-relay/pkg/snowflake"
	"github.com/threadline/chat-relay/pkg/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()
	if err := logger.Init("relay"); err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	addr := envOr("RELAY_ADDR", ":8080")
	scyllaHosts := strings.Split(envOr("SCYLLA_HOSTS", "localhost:9042"), ",")
	keyspace := envOr("SCYLLA_KEYSPACE", "chat")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	kafkaBrokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:19092"), ",")
	notificationsTopic := envOr("NOTIFICATIONS_TOPIC", "notifications")

	nodeID, err := strconv.ParseInt(envOr("RELAY_NODE_ID", "1"), 10, 64)
	if err != nil {
		logger.Log.Fatal("invalid RELAY_NODE_ID", zap.Error(err))
	}
	ids, err := snowflake.New(nodeID)
	if err != nil {
		logger.Log.Fatal("init id generator", zap.Error(err))
	}

	session, err := db.NewSession(scyllaHosts, keyspace)
	if err != nil {
		logger.Log.Fatal("connect to scylla", zap.Error(err))
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	registry := presence.NewRegistry(rdb)
	resolver := auth.NewResolver(store.NewUsers(session, ids))
	messages := store.NewMessages(session, ids)
	hub := NewHub(registry, resolver, messages)

	consumer := NewNotificationConsumer(kafkaBrokers, notificationsTopic, "relay-notifications", hub)
	defer consumer.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("relay listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Fatal("relay stopped", zap.Error(err))
	}
	logger.Log.Info("relay stopped")
}
