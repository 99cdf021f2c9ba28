package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prediction-overlay/backend/internal/config"
	"github.com/prediction-overlay/backend/internal/eventsub"
	"github.com/prediction-overlay/backend/internal/frontend"
	"github.com/prediction-overlay/backend/internal/helix"
	"github.com/prediction-overlay/backend/internal/mock"
	"github.com/prediction-overlay/backend/internal/prediction"
	"github.com/prediction-overlay/backend/internal/session"
	"github.com/prediction-overlay/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate synthetic prediction cycles instead of connecting to Twitch")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	health := eventsub.NewHealth()
	machine := prediction.NewMachine(cfg.EventSub.ResetDelay)
	broadcaster := ws.NewBroadcaster(machine.Snapshot, cfg.Overlay.SnapshotInterval)
	machine.OnChange(broadcaster.Publish)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		log.Info().Msg("starting in mock mode")
		gen := mock.NewGenerator(machine, 2*time.Second)
		gen.Start(ctx)
	} else {
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid config")
		}
		token := os.Getenv("TWITCH_TOKEN")
		if token == "" {
			log.Fatal().Msg("TWITCH_TOKEN is not set")
		}

		registrar := helix.NewClient(helix.Options{
			BaseURL:        cfg.Helix.BaseURL,
			ClientID:       cfg.Helix.ClientID,
			Token:          token,
			Timeout:        cfg.Helix.Timeout,
			RequestsPerSec: cfg.Helix.RequestsPerSec,
		})
		sessions := session.NewManager(cfg.EventSub.BroadcasterUserID, registrar, health)
		client := eventsub.NewClient(cfg.EventSub.URL, sessions, machine, health)

		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				log.Fatal().Err(err).Msg("eventsub client stopped")
			}
		}()
	}

	server := ws.NewServer(machine.Snapshot, broadcaster, health,
		cfg.Overlay.StaticDir, frontend.Handler(), cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		broadcaster.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
