// Command relayd runs the development relay: the HTTP auth/contacts
// API plus the realtime fan-out endpoint the chat client talks to.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cipherchat/internal/server/database"
	"cipherchat/internal/server/httpapi"
	"cipherchat/internal/server/ws"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":5000", "listen address")
	jwtKey := flag.String("jwt-key", os.Getenv("JWT_SIGN_KEY"), "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", 24*time.Hour, "access token TTL")
	minSendInterval := flag.Duration("min-send-interval", 2*time.Second, "per-client send-rate floor")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting relayd",
		zap.String("version", version),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key or JWT_SIGN_KEY)")
	}

	db, err := database.Connect()
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := db.EnsureSchema(ctx); err != nil {
		cancel()
		logger.Fatal("ensure schema", zap.Error(err))
	}
	cancel()

	tokens := httpapi.NewTokenIssuer([]byte(*jwtKey), *accessTTL)
	api := httpapi.New(db, tokens, logger)

	hub := ws.NewHub(*minSendInterval, logger)
	go hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, tokens.Verify, w, r)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
