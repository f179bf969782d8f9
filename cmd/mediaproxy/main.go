package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediaproxy/internal/logging"
	"mediaproxy/internal/mediaproxy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getenvDefault("MEDIAPROXY_CONFIG", "/mediaproxy.yaml"), "path to mediaproxy.yaml")
	flag.Parse()

	boot := logging.New(logging.Config{})
	cfg, err := mediaproxy.LoadConfig(configPath)
	if err != nil {
		boot.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	svc, err := mediaproxy.NewService(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init service")
	}
	defer svc.Close()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		svc.Close()
		log.Fatal().Err(err).Str("addr", addr).Msg("listen")
	}

	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("base_path", cfg.Server.BasePath).
			Str("store", cfg.Store.Driver).
			Dur("expiration", cfg.Expiration()).
			Msg("mediaproxy listening")
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
