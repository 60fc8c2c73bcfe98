// huddled is the room synchronization server. It serves the websocket
// endpoint clients connect to, keeps authoritative per-room widget state,
// and optionally persists rooms to Postgres and relays updates to peer
// instances over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huddlekit/huddle/internal/hub"
	"github.com/huddlekit/huddle/internal/hub/store"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up room store")
	}
	defer closeStore()

	var relay *hub.Relay
	if cfg.Relay.Enabled {
		relay, err = hub.NewRelay(hub.RelayConfig{
			URL:           cfg.Relay.URL,
			SubjectPrefix: cfg.Relay.SubjectPrefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect relay")
		}
		defer relay.Close()
	}

	hubCfg := hub.DefaultConfig()
	hubCfg.DefaultRoom = cfg.Hub.DefaultRoom
	if cfg.Hub.AutoCreateRooms != nil {
		hubCfg.AutoCreateRooms = *cfg.Hub.AutoCreateRooms
	}
	hubCfg.RPSResetDelay = time.Duration(cfg.Hub.RPSResetSeconds) * time.Second

	h := hub.New(hubCfg, st, clockwork.NewRealClock(), relay)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	if len(corsOptions.AllowedOrigins) == 0 {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      cors.New(corsOptions).Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := h.Start(ctx); err != nil {
			log.Error().Err(err).Msg("hub failed")
			cancel()
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Str("default_room", hubCfg.DefaultRoom).Msg("huddled listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("huddled shutdown complete")
}

func buildStore(ctx context.Context, cfg *Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("postgres store requires a DSN")
		}
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
