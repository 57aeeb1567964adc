package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lanchat/relay/internal/api"
	"github.com/lanchat/relay/internal/chat"
	"github.com/lanchat/relay/internal/config"
	"github.com/lanchat/relay/internal/ident"
	"github.com/lanchat/relay/internal/render"
	"github.com/lanchat/relay/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	adminToken     string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; flags override it
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envDefault("LANCHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&adminToken, "admin-token", os.Getenv("LANCHAT_ADMIN_TOKEN"), "operator token for the admin REST surface")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("LANCHAT_SIGNING_KEY"), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[lanchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, adminToken, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	ids, err := ident.NewGenerator(0, uint64(time.Now().UnixNano()))
	if err != nil {
		logger.Fatal("ident: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	renderer := render.NewRenderer()
	chatServer := chat.NewChatServer(logger, ids, renderer.Render, statsUpdater)

	srv := api.NewServer(mux, logger, chatServer, ids, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
