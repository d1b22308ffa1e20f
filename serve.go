package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"penny.bot/api"
	"penny.bot/bus"
	"penny.bot/discordbot"
	"penny.bot/memory"
	"penny.bot/music"
	"penny.bot/stt"
)

func runServe(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eventBus := bus.New(logger)
	eventBus.Subscribe(bus.TypeLogNotice, handleLogNotice)

	var store *memory.PostgresStore
	memSvc := memory.NewService(eventBus, nil, logger)
	if databaseURL := viper.GetString("database_url"); databaseURL != "" {
		var err error
		store, err = memory.NewPostgresStore(ctx, databaseURL)
		if err != nil {
			logger.Fatal("failed to open memory store", "error", err)
		}
		memSvc = memory.NewService(eventBus, store, logger)
	} else {
		logger.Warn("no database_url configured, memory requests will fail")
	}
	if err := memSvc.Start(ctx); err != nil {
		logger.Fatal("failed to start memory service", "error", err)
	}

	var transcriber stt.Transcriber
	if apiKey := viper.GetString("deepgram_api_key"); apiKey != "" {
		transcriber = stt.NewDeepgram(apiKey)
	} else {
		logger.Warn("no deepgram_api_key configured, transcription requests will fail")
	}
	sttSvc := stt.NewService(eventBus, transcriber, logger, 2)
	if err := sttSvc.Start(ctx); err != nil {
		logger.Fatal("failed to start transcription service", "error", err)
	}

	var generator music.Generator
	if musicgenURL := viper.GetString("musicgen_url"); musicgenURL != "" {
		generator = music.NewRemoteEngine(musicgenURL)
	} else {
		logger.Warn("no musicgen_url configured, generation requests will fail")
	}
	musicSvc := music.NewService(eventBus, generator, logger, 1)
	if err := musicSvc.Start(ctx); err != nil {
		logger.Fatal("failed to start music service", "error", err)
	}

	var bot *discordbot.Bot
	if token := viper.GetString("discord_token"); token != "" {
		var err error
		bot, err = discordbot.NewBot(discordbot.Config{
			Token:          token,
			GuildID:        viper.GetString("guild_id"),
			VoiceChannelID: viper.GetString("voice_channel_id"),
			FlushSilence: time.Duration(
				viper.GetInt("flush_silence_ms"),
			) * time.Millisecond,
			TranscribeTimeout: time.Duration(
				viper.GetInt("transcribe_timeout_s"),
			) * time.Second,
		}, eventBus, logger)
		if err != nil {
			logger.Fatal("failed to create discord bot", "error", err)
		}
		if err := bot.Start(ctx); err != nil {
			logger.Fatal("failed to start discord bot", "error", err)
		}
	} else {
		logger.Warn("no discord_token configured, running without voice")
	}

	server := api.NewServer(eventBus, logger, viper.GetInt("http_port"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	waitForStop(sig, gctx.Done())
	logger.Info("shutting down")

	// Stop accepting new audio first, then drain the HTTP side while
	// in-flight publishes finish, then release storage.
	if bot != nil {
		if err := bot.Close(); err != nil {
			logger.Warn("discord shutdown", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
	}

	if store != nil {
		store.Close()
	}
}

// waitForStop blocks until a shutdown signal arrives or the server group is
// cancelled by a failure, so a dead HTTP server (port already bound) tears
// the process down instead of leaving it running silently.
func waitForStop(sig <-chan os.Signal, serverDone <-chan struct{}) {
	select {
	case <-sig:
	case <-serverDone:
	}
}

func handleLogNotice(_ context.Context, ev bus.Event) {
	notice := ev.(bus.LogNotice)
	switch notice.Level {
	case bus.LevelError:
		logger.Error(notice.Message)
	case bus.LevelWarn:
		logger.Warn(notice.Message)
	default:
		logger.Info(notice.Message)
	}
}
