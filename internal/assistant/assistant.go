// Package assistant routes chat messages to the media identification
// pipeline or to the general assistant and keeps the per-user media
// conversation state.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/intent"
	"github.com/diarybot/diarybot/internal/llm"
	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/ranking"
	"github.com/diarybot/diarybot/internal/media/session"
	"github.com/diarybot/diarybot/internal/quota"
	"github.com/diarybot/diarybot/internal/users"
)

// TitleSearcher is the title search adapter.
type TitleSearcher interface {
	Search(ctx context.Context, query string, limit int) []media.CandidateRecord
	SearchByPeople(ctx context.Context, names []string, limit int) []media.CandidateRecord
}

// WebExtractor derives alternate title queries from web results.
type WebExtractor interface {
	Candidates(ctx context.Context, query string, charger media.Charger) ([]string, string)
}

// ImageExtractor derives title queries from a reverse-image lookup.
type ImageExtractor interface {
	ImageCandidates(ctx context.Context, img []byte, ext string, charger media.Charger, lang string) ([]string, string)
}

// LLM answers text and image prompts.
type LLM interface {
	IsConfigured() bool
	Complete(ctx context.Context, system, user string) (string, error)
	Vision(ctx context.Context, system, prompt string, img []byte, mimeType string) (string, error)
}

// ModeStore persists the assistant mode flag.
type ModeStore interface {
	SetAssistantMode(ctx context.Context, id int64, mode string, until time.Time) error
	ClearAssistantMode(ctx context.Context, id int64) error
}

// QuotaMeter charges monthly feature units.
type QuotaMeter interface {
	Cap(plan, feature string) int
	Charge(ctx context.Context, userID int64, plan, feature string) (*quota.Charge, error)
}

// Deps are the collaborators of an Assistant. Searcher, Sessions, Ranker
// and Catalog are required; the rest may be nil and their stages are
// skipped.
type Deps struct {
	Searcher TitleSearcher
	Web      WebExtractor
	Lens     ImageExtractor
	LLM      LLM
	Sessions *session.Store
	Users    ModeStore
	Meter    QuotaMeter
	Ranker   *ranking.Ranker
	Catalog  *i18n.Catalog
}

// ReplyKind tells the transport how to render a reply.
type ReplyKind string

const (
	ReplyAnswer   ReplyKind = "answer"    // ranked result, confident or not
	ReplyChoice   ReplyKind = "choice"    // user picked a numbered option
	ReplyOptions  ReplyKind = "options"   // numbered option list
	ReplyNotFound ReplyKind = "not_found" // every stage came back empty
	ReplyQuota    ReplyKind = "quota"
	ReplyGeneral  ReplyKind = "general"
	ReplyError    ReplyKind = "error"
)

// Request is one incoming message.
type Request struct {
	User     *users.User
	Text     string
	Image    []byte
	ImageExt string
	Language string
}

// Reply is what the bot sends back.
type Reply struct {
	Kind       ReplyKind
	Text       string
	Confident  bool
	Query      string
	Source     string
	Candidates []media.ScoredCandidate
}

// Assistant is the media session orchestrator.
type Assistant struct {
	deps    Deps
	modeTTL time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func New(deps Deps, cfg config.AssistantConfig, logger zerolog.Logger) *Assistant {
	return &Assistant{
		deps:    deps,
		modeTTL: cfg.ModeTTL(),
		logger:  logger.With().Str("component", "assistant").Logger(),
		now:     time.Now,
	}
}

// Run handles one message. It never returns an error: provider failures
// degrade to empty stages and a panic becomes a generic error reply.
func (a *Assistant) Run(ctx context.Context, req Request) (reply Reply) {
	lang := a.language(req)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("Assistant request panicked")
			reply = Reply{Kind: ReplyError, Text: a.deps.Catalog.T(lang, "bot.error")}
		}
	}()

	if req.User == nil {
		return Reply{Kind: ReplyError, Text: a.deps.Catalog.T(lang, "bot.error")}
	}

	key := req.User.SessionKey()
	sess, hasSession := a.deps.Sessions.Get(key)
	active := hasSession || req.User.ModeActive(a.now())

	in := intent.Route(req.Text, len(req.Image) > 0, active)
	log := a.logger.With().Str("user", key).Str("intent", string(in)).Logger()
	log.Debug().Bool("session", hasSession).Bool("mode", active).Msg("Routing message")

	if !in.IsMedia() {
		a.leaveMedia(ctx, req.User)
		return a.general(ctx, req, in, lang)
	}

	var current *session.Session
	if hasSession {
		current = &sess
	}
	return a.media(ctx, req, lang, current, log)
}

// Cancel drops the media conversation of u.
func (a *Assistant) Cancel(ctx context.Context, u *users.User) {
	a.leaveMedia(ctx, u)
}

// Confirm ends the media conversation after the user accepted the answer.
func (a *Assistant) Confirm(ctx context.Context, u *users.User, lang string) Reply {
	a.leaveMedia(ctx, u)
	return Reply{Kind: ReplyGeneral, Text: a.deps.Catalog.T(lang, "media.confirmed")}
}

// Options lists the stored candidates of u as numbered options.
func (a *Assistant) Options(u *users.User, lang string) Reply {
	sess, ok := a.deps.Sessions.Get(u.SessionKey())
	if !ok {
		return Reply{Kind: ReplyOptions, Text: a.deps.Catalog.T(lang, "media.no_options")}
	}
	return Reply{
		Kind:  ReplyOptions,
		Query: sess.Query,
		Text:  a.deps.Ranker.FormatOptions(sess.Query, sess.Candidates, lang),
	}
}

// Clarify asks for another fact and keeps the conversation open.
func (a *Assistant) Clarify(ctx context.Context, u *users.User, lang string) Reply {
	a.enterMedia(ctx, u)
	return Reply{Kind: ReplyGeneral, Text: a.deps.Catalog.T(lang, "media.clarify_prompt")}
}

func (a *Assistant) language(req Request) string {
	tag := req.Language
	if tag == "" && req.User != nil {
		tag = req.User.Language
	}
	return a.deps.Catalog.Language(tag)
}

func (a *Assistant) enterMedia(ctx context.Context, u *users.User) {
	if a.deps.Users == nil || u.ID == 0 {
		return
	}
	until := a.now().Add(a.modeTTL)
	if err := a.deps.Users.SetAssistantMode(ctx, u.ID, users.ModeMedia, until); err != nil {
		a.logger.Warn().Err(err).Int64("userId", u.ID).Msg("Failed to set assistant mode")
		return
	}
	u.AssistantMode = users.ModeMedia
	u.AssistantModeUntil = &until
}

func (a *Assistant) leaveMedia(ctx context.Context, u *users.User) {
	a.deps.Sessions.Clear(u.SessionKey())
	if a.deps.Users == nil || u.ID == 0 || u.AssistantMode == "" {
		return
	}
	if err := a.deps.Users.ClearAssistantMode(ctx, u.ID); err != nil && !errors.Is(err, users.ErrNotFound) {
		a.logger.Warn().Err(err).Int64("userId", u.ID).Msg("Failed to clear assistant mode")
		return
	}
	u.AssistantMode = ""
	u.AssistantModeUntil = nil
}

// charger binds a quota feature to a user. It returns nil when the user's
// plan has no allowance for the feature. exceeded is set when a charge is
// refused for a reached cap.
func (a *Assistant) charger(u *users.User, feature string, exceeded *atomic.Bool) media.Charger {
	if a.deps.Meter == nil || u.ID == 0 {
		return nil
	}
	plan := u.EffectivePlan(a.now())
	if a.deps.Meter.Cap(plan, feature) == 0 {
		return nil
	}
	return func(ctx context.Context) (func(), error) {
		ch, err := a.deps.Meter.Charge(ctx, u.ID, plan, feature)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) && exceeded != nil {
				exceeded.Store(true)
			}
			return nil, err
		}
		return func() {
			if ch == nil {
				return
			}
			if err := ch.Refund(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn().Err(err).Str("feature", feature).Msg("Failed to refund quota unit")
			}
		}, nil
	}
}

func (a *Assistant) general(ctx context.Context, req Request, in intent.Intent, lang string) Reply {
	fallback := a.deps.Catalog.T(lang, generalKey(in))
	if a.deps.LLM == nil || !a.deps.LLM.IsConfigured() || strings.TrimSpace(req.Text) == "" {
		return Reply{Kind: ReplyGeneral, Text: fallback}
	}

	var exceeded atomic.Bool
	charge := a.charger(req.User, quota.FeatureAssistant, &exceeded)
	if charge == nil {
		return Reply{Kind: ReplyGeneral, Text: fallback}
	}
	refund, err := charge(ctx)
	if err != nil {
		if exceeded.Load() {
			return Reply{Kind: ReplyQuota, Text: a.deps.Catalog.T(lang, "media.quota")}
		}
		a.logger.Warn().Err(err).Msg("Assistant quota charge failed")
		return Reply{Kind: ReplyGeneral, Text: fallback}
	}

	prompt := fmt.Sprintf("%s\nReply in language: %s.", llm.AssistantPrompt, lang)
	answer, err := a.deps.LLM.Complete(ctx, prompt, req.Text)
	if err != nil {
		refund()
		a.logger.Warn().Err(err).Msg("Assistant completion failed")
		return Reply{Kind: ReplyGeneral, Text: fallback}
	}
	return Reply{Kind: ReplyGeneral, Text: answer}
}

func generalKey(in intent.Intent) string {
	switch in {
	case intent.Weather:
		return "general.weather"
	case intent.Shopping:
		return "general.shopping"
	default:
		return "general.unavailable"
	}
}
