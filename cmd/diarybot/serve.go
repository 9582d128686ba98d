package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/diarybot/diarybot/internal/api"
	"github.com/diarybot/diarybot/internal/bot"
	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/scheduler"
	"github.com/diarybot/diarybot/internal/scheduler/tasks"
	"github.com/diarybot/diarybot/internal/startup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the bot with the HTTP health endpoint and the maintenance scheduler.
In polling mode updates are fetched with getUpdates; in webhook mode the
bot registers telegram.webhook_url and receives updates over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	webhook := strings.EqualFold(cfg.Telegram.Mode, "webhook")
	if webhook && cfg.Telegram.WebhookURL == "" {
		return errors.New("telegram.webhook_url is required in webhook mode")
	}

	log := newLogger(cfg)
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("mode", cfg.Telegram.Mode).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting diarybot")

	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var botAPI *tgbotapi.BotAPI
	err = startup.WithRetry(ctx, "telegram login", startup.DefaultRetryConfig(), func(context.Context) error {
		var err error
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		return err
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug
	log.Info().Str("bot", botAPI.Self.UserName).Msg("authorized on telegram")

	b := bot.New(botAPI, a.assistant, a.users, a.meter, a.catalog, cfg.Telegram, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := tasks.RegisterAll(sched, a.meter, a.users, a.sessions, log.Logger); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown error")
		}
	}()

	var updates api.UpdateHandler
	if webhook {
		updates = b
	}
	server := api.NewServer(updates, a.db, cfg.Telegram.WebhookSecret, log.Logger)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	if webhook {
		if err := setWebhook(botAPI, cfg.Telegram); err != nil {
			return err
		}
		log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
		<-ctx.Done()
	} else {
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Warn().Err(err).Msg("failed to remove webhook before polling")
		}
		b.Poll(ctx, botAPI, cfg.Telegram.PollTimeout)
	}

	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	b.Wait()

	log.Info().Msg("diarybot stopped")
	return nil
}

func setWebhook(botAPI *tgbotapi.BotAPI, cfg config.TelegramConfig) error {
	params := tgbotapi.Params{"url": cfg.WebhookURL}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	if _, err := botAPI.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
