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

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadline/chat-relay/pkg/auth"
	"github.com/threadline/chat-relay/pkg/db"
	"github.com/threadline/chat-relay/pkg/logger"
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
	if err := logger.Init("api"); err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	addr := envOr("API_ADDR", ":8081")
	scyllaHosts := strings.Split(envOr("SCYLLA_HOSTS", "localhost:9042"), ",")
	keyspace := envOr("SCYLLA_KEYSPACE", "chat")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")

	nodeID, err := strconv.ParseInt(envOr("API_NODE_ID", "2"), 10, 64)
	if err != nil {
		logger.Log.Fatal("invalid API_NODE_ID", zap.Error(err))
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

	resolver := auth.NewResolver(store.NewUsers(session, ids))
	messages := store.NewMessages(session, ids)

	r := mux.NewRouter()
	r.Use(CORSMiddleware)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/auth/token", TokenHandler).Methods(http.MethodPost, http.MethodOptions)

	chat := v1.PathPrefix("/chat").Subrouter()
	chat.Use(AuthMiddleware(resolver))
	chat.Handle("/conversations/{otherUserId}/messages", NewHistoryHandler(messages)).Methods(http.MethodGet, http.MethodOptions)
	chat.Handle("/presence", NewPresenceHandler(rdb)).Methods(http.MethodGet, http.MethodOptions)

	server := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("api listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Fatal("api stopped", zap.Error(err))
	}
	logger.Log.Info("api stopped")
}
