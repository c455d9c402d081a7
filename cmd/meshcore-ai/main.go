package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/wombatinua/meshcore-ai/pkg/config"
	"github.com/wombatinua/meshcore-ai/pkg/directory"
	"github.com/wombatinua/meshcore-ai/pkg/gateway"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore"
	"github.com/wombatinua/meshcore-ai/pkg/routes"
	"github.com/wombatinua/meshcore-ai/pkg/store"
	"github.com/wombatinua/meshcore-ai/pkg/translate"
)

func main() {
	log := slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	allowed, err := config.ParseChannelSet(cfg.Bot.AllowedChannels)
	if err != nil {
		return fmt.Errorf("bot.allowedchannels: %w", err)
	}
	translateFrom, err := config.ParseChannelSet(cfg.Bot.TranslateFromChannels)
	if err != nil {
		return fmt.Errorf("bot.translatefromchannels: %w", err)
	}
	translateTo, err := config.ParseChannelIndex(cfg.Bot.TranslateToChannel)
	if err != nil {
		return fmt.Errorf("bot.translatetochannel: %w", err)
	}

	db, err := sqlx.Connect("postgres", cfg.ConnString())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}
	stores := store.NewStores(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device := meshcore.NewClient(cfg.DevicePath, log.With("component", "device"))
	dir := directory.New(log.With("component", "directory"))

	var translator gateway.Translator
	if cfg.AI.Endpoint != "" || cfg.AI.APIKey != "" {
		translator = translate.New(translate.Config{
			Endpoint:       cfg.AI.Endpoint,
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			TargetLanguage: cfg.AI.TargetLanguage,
			Temperature:    float32(cfg.AI.Temperature),
			MaxTokens:      cfg.AI.MaxTokens,
		}, log.With("component", "translate"))
	}

	bot := gateway.NewBot(device, translator, gateway.BotConfig{
		AllowedChannels: allowed,
		TranslateFrom:   translateFrom,
		TranslateTo:     translateTo,
	}, log.With("component", "bot"))

	normalizer := gateway.NewNormalizer(dir, device, log.With("component", "normalize"))
	pipeline := gateway.NewPipeline(device, dir, normalizer, stores, bot,
		log.With("component", "pipeline"))
	supervisor := gateway.NewSupervisor(device, dir, bot, cfg.DevicePath,
		time.Duration(cfg.ReconnectDelayMS)*time.Millisecond,
		log.With("component", "supervisor"))
	pipeline.OnDisconnected = supervisor.OnDisconnected
	pipeline.OnError = supervisor.OnError

	go pipeline.Run(ctx)
	go supervisor.Start(ctx)

	api := routes.NewApiRouter(cfg.HTTP.APIPath, device, dir, stores,
		log.With("component", "http"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Serve(fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port))
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
