// Package bot is the Telegram transport: it turns updates into assistant
// requests and renders the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/assistant"
	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/quota"
	"github.com/diarybot/diarybot/internal/users"
)

const (
	// MaxPhotoBytes caps photo downloads.
	MaxPhotoBytes = 10 << 20

	downloadTimeout = 30 * time.Second

	callbackConfirm = "media:ok"
	callbackMore    = "media:more"
	callbackClarify = "media:clarify"
)

var ErrPhotoTooLarge = errors.New("photo too large")

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Assistant handles media and general requests.
type Assistant interface {
	Run(ctx context.Context, req assistant.Request) assistant.Reply
	Cancel(ctx context.Context, u *users.User)
	Confirm(ctx context.Context, u *users.User, lang string) assistant.Reply
	Options(u *users.User, lang string) assistant.Reply
	Clarify(ctx context.Context, u *users.User, lang string) assistant.Reply
}

// UserStore registers Telegram users.
type UserStore interface {
	Upsert(ctx context.Context, telegramID int64, username, language string) (*users.User, error)
}

// UsageReader reports quota counters for /plan.
type UsageReader interface {
	Usage(ctx context.Context, userID int64, plan string) ([]quota.FeatureUsage, error)
}

// Bot dispatches Telegram updates.
type Bot struct {
	api            API
	assistant      Assistant
	users          UserStore
	usage          UsageReader
	catalog        *i18n.Catalog
	dispatcher     *Dispatcher
	httpClient     *http.Client
	typingInterval time.Duration
	defaultLang    string
	logger         zerolog.Logger
}

func New(api API, asst Assistant, userStore UserStore, usage UsageReader, catalog *i18n.Catalog, cfg config.TelegramConfig, logger zerolog.Logger) *Bot {
	return &Bot{
		api:            api,
		assistant:      asst,
		users:          userStore,
		usage:          usage,
		catalog:        catalog,
		dispatcher:     NewDispatcher(logger),
		httpClient:     &http.Client{Timeout: downloadTimeout},
		typingInterval: time.Duration(cfg.TypingInterval) * time.Second,
		defaultLang:    cfg.DefaultLanguage,
		logger:         logger.With().Str("component", "bot").Logger(),
	}
}

// HandleUpdate queues upd behind earlier updates of the same sender.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	from := sender(upd)
	if from == nil {
		return
	}
	key := "tg:" + strconv.FormatInt(from.ID, 10)
	b.dispatcher.Submit(ctx, key, func(ctx context.Context) {
		b.process(ctx, upd, from)
	})
}

// Wait blocks until every queued update is handled.
func (b *Bot) Wait() {
	b.dispatcher.Wait()
}

// Poll reads updates with long polling until ctx is cancelled.
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI, timeout int) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	updates := api.GetUpdatesChan(u)

	b.logger.Info().Str("bot", api.Self.UserName).Msg("Polling for updates")
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			b.Wait()
			return
		case upd, ok := <-updates:
			if !ok {
				b.Wait()
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) process(ctx context.Context, upd tgbotapi.Update, from *tgbotapi.User) {
	log := b.logger.With().Str("request_id", uuid.NewString()).Int64("from", from.ID).Logger()
	ctx = log.WithContext(ctx)

	u, err := b.users.Upsert(ctx, from.ID, from.UserName, from.LanguageCode)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register user")
		return
	}
	lang := b.language(u, from)

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery, u, lang)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message, u, lang)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message, u *users.User, lang string) {
	log := zerolog.Ctx(ctx)
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, u, lang)
		return
	}

	req := assistant.Request{User: u, Text: msg.Text, Language: lang}
	if len(msg.Photo) > 0 {
		req.Text = msg.Caption
		img, ext, err := b.downloadPhoto(ctx, msg.Photo)
		if err != nil {
			log.Warn().Err(err).Msg("Photo download failed")
			key := "bot.error"
			if errors.Is(err, ErrPhotoTooLarge) {
				key = "bot.photo_too_large"
			}
			b.send(chatID, b.catalog.T(lang, key), nil)
			return
		}
		req.Image, req.ImageExt = img, ext
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Image) == 0 {
		return
	}

	reply := b.ask(ctx, chatID, req)

	log.Info().
		Str("kind", string(reply.Kind)).
		Str("source", reply.Source).
		Bool("confident", reply.Confident).
		Msg("Replied")
	b.sendReply(chatID, reply, lang)
}

// ask runs the assistant with the typing indicator shown for the whole call.
func (b *Bot) ask(ctx context.Context, chatID int64, req assistant.Request) assistant.Reply {
	stop := startTyping(ctx, b.api, chatID, b.typingInterval)
	defer stop()
	return b.assistant.Run(ctx, req)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, u *users.User, lang string) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.send(chatID, b.catalog.T(lang, "bot.start"), nil)
	case "cancel":
		b.assistant.Cancel(ctx, u)
		b.send(chatID, b.catalog.T(lang, "bot.cancelled"), nil)
	case "plan":
		b.send(chatID, b.planText(ctx, u, lang), nil)
	default:
		b.send(chatID, b.catalog.T(lang, "bot.help"), nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, u *users.User, lang string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}
	if cq.Message == nil {
		return
	}

	var reply assistant.Reply
	switch cq.Data {
	case callbackConfirm:
		reply = b.assistant.Confirm(ctx, u, lang)
	case callbackMore:
		reply = b.assistant.Options(u, lang)
	case callbackClarify:
		reply = b.assistant.Clarify(ctx, u, lang)
	default:
		return
	}
	b.sendReply(cq.Message.Chat.ID, reply, lang)
}

func (b *Bot) sendReply(chatID int64, reply assistant.Reply, lang string) {
	if reply.Text == "" {
		return
	}
	var markup any
	if reply.Kind == assistant.ReplyAnswer && reply.Confident {
		markup = b.mediaKeyboard(lang)
	}
	b.send(chatID, reply.Text, markup)
}

func (b *Bot) mediaKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, "button.ok"), callbackConfirm),
			tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, "button.more"), callbackMore),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.catalog.T(lang, "button.clarify"), callbackClarify),
		),
	)
}

func (b *Bot) send(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn().Err(err).Int64("chat", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) planText(ctx context.Context, u *users.User, lang string) string {
	plan := u.EffectivePlan(time.Now())
	lines := []string{b.catalog.T(lang, "bot.plan_header", plan)}
	if b.usage == nil {
		return lines[0]
	}

	usage, err := b.usage.Usage(ctx, u.ID, plan)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to read quota usage")
		return lines[0]
	}
	for _, f := range usage {
		limit := strconv.Itoa(f.Cap)
		if f.Unlimited() {
			limit = b.catalog.T(lang, "bot.unlimited")
		}
		lines = append(lines, b.catalog.T(lang, "bot.plan_line", b.catalog.T(lang, "feature."+f.Feature), f.Used, limit))
	}
	return strings.Join(lines, "\n")
}

// downloadPhoto fetches the largest photo size.
func (b *Bot) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) ([]byte, string, error) {
	largest := sizes[len(sizes)-1]
	if largest.FileSize > MaxPhotoBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrPhotoTooLarge, largest.FileSize)
	}

	url, err := b.api.GetFileDirectURL(largest.FileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download photo: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPhotoBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > MaxPhotoBytes {
		return nil, "", ErrPhotoTooLarge
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0])), ".")
	if ext == "" {
		ext = "jpg"
	}
	return data, ext, nil
}

func (b *Bot) language(u *users.User, from *tgbotapi.User) string {
	for _, tag := range []string{u.Language, from.LanguageCode, b.defaultLang} {
		if tag != "" {
			return b.catalog.Language(tag)
		}
	}
	return b.catalog.Language("")
}

func sender(upd tgbotapi.Update) *tgbotapi.User {
	switch {
	case upd.Message != nil:
		return upd.Message.From
	case upd.CallbackQuery != nil:
		return upd.CallbackQuery.From
	default:
		return nil
	}
}
