package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/i18n"
	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/ranking"
	"github.com/diarybot/diarybot/internal/media/session"
	"github.com/diarybot/diarybot/internal/quota"
	"github.com/diarybot/diarybot/internal/testutil"
	"github.com/diarybot/diarybot/internal/users"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]media.CandidateRecord
	panicOn string
	queries []string
	people  [][]string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) []media.CandidateRecord {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if query == f.panicOn {
		panic("search exploded")
	}
	return f.results[query]
}

func (f *fakeSearcher) SearchByPeople(_ context.Context, names []string, _ int) []media.CandidateRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.people = append(f.people, names)
	return f.results["people:"+strings.Join(names, ",")]
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeWeb struct {
	queries   []string
	charge    bool
	chargeErr error
	out       []string
}

func (f *fakeWeb) Candidates(ctx context.Context, query string, charger media.Charger) ([]string, string) {
	f.queries = append(f.queries, query)
	if f.charge && charger != nil {
		if _, err := charger(ctx); err != nil {
			f.chargeErr = err
		}
	}
	return f.out, "brave"
}

type fakeLLM struct {
	visionOut   string
	completeOut string
	completeErr error
	visionCalls int
	mimeTypes   []string
}

func (f *fakeLLM) IsConfigured() bool { return true }

func (f *fakeLLM) Complete(context.Context, string, string) (string, error) {
	return f.completeOut, f.completeErr
}

func (f *fakeLLM) Vision(_ context.Context, _, _ string, _ []byte, mimeType string) (string, error) {
	f.visionCalls++
	f.mimeTypes = append(f.mimeTypes, mimeType)
	return f.visionOut, nil
}

func newTestAssistant(t *testing.T, d Deps) *Assistant {
	t.Helper()
	if d.Sessions == nil {
		d.Sessions = session.NewStore(10 * time.Minute)
	}
	d.Catalog = i18n.MustLoad()
	d.Ranker = ranking.NewRanker(d.Catalog, ranking.DefaultThreshold)
	return New(d, config.AssistantConfig{}, testutil.NewTestLogger(t))
}

func threeCandidates() []media.CandidateRecord {
	return []media.CandidateRecord{
		{Kind: media.KindMovie, ID: 1, Title: "Jaws", Year: "1975", Popularity: 40},
		{Kind: media.KindMovie, ID: 2, Title: "Deep Blue Sea", Year: "1999", Popularity: 45, VoteAverage: 6.5},
		{Kind: media.KindMovie, ID: 3, Title: "The Meg", Year: "2018", Popularity: 60},
	}
}

func activeUser(telegramID int64) *users.User {
	until := time.Now().Add(5 * time.Minute)
	return &users.User{TelegramID: telegramID, Language: "en", AssistantMode: users.ModeMedia, AssistantModeUntil: &until}
}

func TestRun_NumericChoiceFromSession(t *testing.T) {
	searcher := &fakeSearcher{}
	web := &fakeWeb{}
	a := newTestAssistant(t, Deps{Searcher: searcher, Web: web})

	u := &users.User{TelegramID: 10, Language: "en"}
	cands := threeCandidates()
	a.deps.Sessions.Set(u.SessionKey(), "shark movie", cands)

	reply := a.Run(context.Background(), Request{User: u, Text: "2"})

	assert.Equal(t, ReplyChoice, reply.Kind)
	assert.Equal(t, a.deps.Ranker.FormatChoice(cands[1], "en"), reply.Text)
	require.Len(t, reply.Candidates, 1)
	assert.Equal(t, "Deep Blue Sea", reply.Candidates[0].Title)
	assert.Empty(t, searcher.calls())
	assert.Empty(t, web.queries)
}

func TestRun_NumberWithoutSessionIsQueryText(t *testing.T) {
	searcher := &fakeSearcher{}
	web := &fakeWeb{}
	a := newTestAssistant(t, Deps{Searcher: searcher, Web: web})

	u := activeUser(11)
	reply := a.Run(context.Background(), Request{User: u, Text: "2"})

	assert.Equal(t, ReplyNotFound, reply.Kind)
	assert.Equal(t, []string{"2"}, web.queries)

	sess, ok := a.deps.Sessions.Get(u.SessionKey())
	require.True(t, ok)
	assert.Equal(t, "2", sess.Query)
	assert.Empty(t, sess.Candidates)
}

func TestRun_NumberOutOfRangeSearches(t *testing.T) {
	searcher := &fakeSearcher{}
	web := &fakeWeb{}
	a := newTestAssistant(t, Deps{Searcher: searcher, Web: web})

	u := &users.User{TelegramID: 12, Language: "en"}
	a.deps.Sessions.Set(u.SessionKey(), "shark movie", threeCandidates())

	reply := a.Run(context.Background(), Request{User: u, Text: "7"})
	assert.Equal(t, ReplyNotFound, reply.Kind)
	assert.NotEmpty(t, web.queries)
}

func TestRun_AsksForNameRelistsOptions(t *testing.T) {
	searcher := &fakeSearcher{}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	u := &users.User{TelegramID: 13, Language: "ru"}
	cands := threeCandidates()
	a.deps.Sessions.Set(u.SessionKey(), "фильм про акул", cands)

	reply := a.Run(context.Background(), Request{User: u, Text: "как называется?"})

	assert.Equal(t, ReplyOptions, reply.Kind)
	assert.Equal(t, a.deps.Ranker.FormatOptions("фильм про акул", cands, "ru"), reply.Text)
	assert.Empty(t, searcher.calls())
}

func TestRun_HintMergesWithSessionQuery(t *testing.T) {
	deepBlue := media.CandidateRecord{Kind: media.KindMovie, ID: 8914, Title: "Deep Blue Sea", Year: "1999", Popularity: 45, VoteAverage: 6.5}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{
		"фильм про акул 1999": {deepBlue},
	}}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	u := &users.User{TelegramID: 14, Language: "ru"}
	a.deps.Sessions.Set(u.SessionKey(), "фильм про акул", nil)

	reply := a.Run(context.Background(), Request{User: u, Text: "1999"})

	require.Equal(t, ReplyAnswer, reply.Kind)
	assert.Equal(t, "фильм про акул 1999", reply.Query)
	assert.Equal(t, SourceSearch, reply.Source)
	assert.False(t, reply.Confident)
	assert.Contains(t, reply.Text, a.deps.Catalog.T("ru", "media.not_sure"))

	sess, ok := a.deps.Sessions.Get(u.SessionKey())
	require.True(t, ok)
	assert.Equal(t, "фильм про акул 1999", sess.Query)
	require.Len(t, sess.Candidates, 1)
	assert.Equal(t, deepBlue.ID, sess.Candidates[0].ID)
}

func TestRun_YearHintReplacesSessionYear(t *testing.T) {
	uncaged := media.CandidateRecord{Kind: media.KindMovie, ID: 480105, Title: "47 Meters Down: Uncaged", Year: "2019", Popularity: 30}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{
		"shark movie 2019": {uncaged},
	}}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	u := activeUser(20)
	a.deps.Sessions.Set(u.SessionKey(), "shark movie 1999", nil)

	reply := a.Run(context.Background(), Request{User: u, Text: "2019"})

	require.Equal(t, ReplyAnswer, reply.Kind)
	assert.Equal(t, "shark movie 2019", reply.Query)
	require.NotEmpty(t, searcher.calls())
	assert.Equal(t, "shark movie 2019", searcher.calls()[0])

	sess, ok := a.deps.Sessions.Get(u.SessionKey())
	require.True(t, ok)
	assert.Equal(t, "shark movie 2019", sess.Query)
}

func TestRun_ConfidentAnswer(t *testing.T) {
	inception := media.CandidateRecord{Kind: media.KindMovie, ID: 27205, Title: "Inception", Year: "2010", Popularity: 80, VoteAverage: 8.8}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{
		"Inception 2010": {inception},
	}}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	reply := a.Run(context.Background(), Request{User: activeUser(15), Text: "Inception 2010"})

	require.Equal(t, ReplyAnswer, reply.Kind)
	assert.True(t, reply.Confident)
	assert.Equal(t, []string{"Inception 2010"}, searcher.calls())
}

func TestRun_ShortWhatMovieKeepsSession(t *testing.T) {
	searcher := &fakeSearcher{}
	web := &fakeWeb{}
	a := newTestAssistant(t, Deps{Searcher: searcher, Web: web})

	u := &users.User{TelegramID: 16, Language: "ru"}
	reply := a.Run(context.Background(), Request{User: u, Text: "фильм?"})

	assert.Equal(t, ReplyNotFound, reply.Kind)
	assert.Equal(t, a.deps.Catalog.T("ru", "media.not_found"), reply.Text)
	assert.Empty(t, searcher.calls())
	assert.Empty(t, web.queries)

	_, ok := a.deps.Sessions.Get(u.SessionKey())
	assert.True(t, ok)
}

func TestRun_NonMediaIntentClearsSession(t *testing.T) {
	searcher := &fakeSearcher{}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	u := &users.User{TelegramID: 17, Language: "en"}
	a.deps.Sessions.Set(u.SessionKey(), "shark movie", threeCandidates())

	reply := a.Run(context.Background(), Request{User: u, Text: "what's the weather today"})
	assert.Equal(t, ReplyGeneral, reply.Kind)
	assert.Equal(t, a.deps.Catalog.T("en", "general.weather"), reply.Text)

	_, ok := a.deps.Sessions.Get(u.SessionKey())
	assert.False(t, ok)

	// the stale query must not be merged into the next media message
	a.Run(context.Background(), Request{User: u, Text: "movie 1999"})
	for _, q := range searcher.calls() {
		assert.NotContains(t, q, "shark")
	}
}

func TestRun_NonMediaIntentClearsPersistedMode(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := users.NewRepository(tdb.DB, tdb.Logger)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, 501, "alice", "en")
	require.NoError(t, err)

	inception := media.CandidateRecord{Kind: media.KindMovie, ID: 27205, Title: "Inception", Year: "2010", Popularity: 80}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{"Inception 2010": {inception}}}
	a := newTestAssistant(t, Deps{Searcher: searcher, Users: repo})

	reply := a.Run(ctx, Request{User: u, Text: "Inception 2010"})
	require.Equal(t, ReplyAnswer, reply.Kind)

	stored, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.ModeActive(time.Now()))

	reply = a.Run(ctx, Request{User: stored, Text: "will it rain tomorrow"})
	assert.Equal(t, ReplyGeneral, reply.Kind)

	stored, err = repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AssistantMode)
	_, ok := a.deps.Sessions.Get(u.SessionKey())
	assert.False(t, ok)
}

func TestRun_PanickingStageFallsThrough(t *testing.T) {
	inception := media.CandidateRecord{Kind: media.KindMovie, ID: 27205, Title: "Inception", Year: "2010", Popularity: 80}
	searcher := &fakeSearcher{
		panicOn: "movie Inceptoin",
		results: map[string][]media.CandidateRecord{"Inception 2010": {inception}},
	}
	web := &fakeWeb{out: []string{"Inception 2010"}}
	a := newTestAssistant(t, Deps{Searcher: searcher, Web: web})

	reply := a.Run(context.Background(), Request{User: activeUser(18), Text: "movie Inceptoin"})

	require.Equal(t, ReplyAnswer, reply.Kind)
	assert.Equal(t, "Inception 2010", reply.Query)
	assert.Equal(t, "web:brave", reply.Source)
}

func TestRun_PaidWebQuotaNote(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := users.NewRepository(tdb.DB, tdb.Logger)
	meter := quota.NewMeter(tdb.DB, map[string]map[string]int{"free": {quota.FeatureWebPaid: 1}}, tdb.Logger)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, 502, "bob", "en")
	require.NoError(t, err)

	web := &fakeWeb{charge: true}
	a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}, Web: web, Users: repo, Meter: meter})

	first := a.Run(ctx, Request{User: u, Text: "фильм Inceptoin"})
	assert.Equal(t, ReplyNotFound, first.Kind)
	require.NoError(t, web.chargeErr)
	assert.NotContains(t, first.Text, a.deps.Catalog.T("en", "media.paid_note"))

	second := a.Run(ctx, Request{User: u, Text: "фильм Inceptoin"})
	assert.Equal(t, ReplyNotFound, second.Kind)
	assert.ErrorIs(t, web.chargeErr, quota.ErrQuotaExceeded)
	assert.Contains(t, second.Text, a.deps.Catalog.T("en", "media.paid_note"))
}

func TestRun_ImageUsesVision(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := users.NewRepository(tdb.DB, tdb.Logger)
	meter := quota.NewMeter(tdb.DB, config.DefaultPlans(), tdb.Logger)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, 503, "carol", "en")
	require.NoError(t, err)

	inception := media.CandidateRecord{Kind: media.KindMovie, ID: 27205, Title: "Inception", Year: "2010", Popularity: 80, VoteAverage: 8.8}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{"Inception 2010": {inception}}}
	model := &fakeLLM{visionOut: `{"title": "Inception", "year": "2010", "cast": ["Leonardo DiCaprio"]}`}
	a := newTestAssistant(t, Deps{Searcher: searcher, LLM: model, Users: repo, Meter: meter})

	reply := a.Run(ctx, Request{User: u, Image: []byte{0x89, 0x50}, ImageExt: "png"})

	require.Equal(t, ReplyAnswer, reply.Kind)
	assert.Equal(t, SourceVision, reply.Source)
	assert.Equal(t, "Inception 2010", reply.Query)
	assert.Equal(t, []string{"image/png"}, model.mimeTypes)
	assert.Equal(t, 1, used(t, meter, u.ID, quota.FeatureVision))
}

func TestRun_ImageQuotaExceeded(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := users.NewRepository(tdb.DB, tdb.Logger)
	meter := quota.NewMeter(tdb.DB, map[string]map[string]int{"free": {quota.FeatureVision: 1}}, tdb.Logger)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, 504, "dave", "en")
	require.NoError(t, err)
	_, err = meter.Charge(ctx, u.ID, users.PlanFree, quota.FeatureVision)
	require.NoError(t, err)

	model := &fakeLLM{}
	a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}, LLM: model, Users: repo, Meter: meter})

	reply := a.Run(ctx, Request{User: u, Image: []byte{0xff, 0xd8}, ImageExt: "jpg"})

	assert.Equal(t, ReplyQuota, reply.Kind)
	assert.Equal(t, a.deps.Catalog.T("en", "media.quota"), reply.Text)
	assert.Zero(t, model.visionCalls)
}

func TestRun_GeneralAnswerRefundsOnFailure(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	repo := users.NewRepository(tdb.DB, tdb.Logger)
	meter := quota.NewMeter(tdb.DB, map[string]map[string]int{"free": {quota.FeatureAssistant: 2}}, tdb.Logger)
	ctx := context.Background()

	u, err := repo.Upsert(ctx, 505, "erin", "en")
	require.NoError(t, err)

	t.Run("answer", func(t *testing.T) {
		model := &fakeLLM{completeOut: "Write about your day."}
		a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}, LLM: model, Meter: meter})

		reply := a.Run(ctx, Request{User: u, Text: "how do I start a diary"})
		assert.Equal(t, ReplyGeneral, reply.Kind)
		assert.Equal(t, "Write about your day.", reply.Text)
		assert.Equal(t, 1, used(t, meter, u.ID, quota.FeatureAssistant))
	})

	t.Run("failure refunds", func(t *testing.T) {
		model := &fakeLLM{completeErr: errors.New("boom")}
		a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}, LLM: model, Meter: meter})

		reply := a.Run(ctx, Request{User: u, Text: "how do I start a diary"})
		assert.Equal(t, a.deps.Catalog.T("en", "general.unavailable"), reply.Text)
		assert.Equal(t, 1, used(t, meter, u.ID, quota.FeatureAssistant))
	})
}

func TestRun_NilUser(t *testing.T) {
	a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}})
	reply := a.Run(context.Background(), Request{Text: "Inception"})
	assert.Equal(t, ReplyError, reply.Kind)
}

func TestActions(t *testing.T) {
	a := newTestAssistant(t, Deps{Searcher: &fakeSearcher{}})
	ctx := context.Background()
	u := &users.User{TelegramID: 19, Language: "en"}

	reply := a.Options(u, "en")
	assert.Equal(t, a.deps.Catalog.T("en", "media.no_options"), reply.Text)

	a.deps.Sessions.Set(u.SessionKey(), "shark movie", threeCandidates())
	reply = a.Options(u, "en")
	assert.Contains(t, reply.Text, "Deep Blue Sea")

	reply = a.Confirm(ctx, u, "en")
	assert.Equal(t, a.deps.Catalog.T("en", "media.confirmed"), reply.Text)
	_, ok := a.deps.Sessions.Get(u.SessionKey())
	assert.False(t, ok)
}

func TestSearchFirst_LowestIndexWins(t *testing.T) {
	hit := func(id int) []media.CandidateRecord {
		return []media.CandidateRecord{{Kind: media.KindMovie, ID: id, Title: "x"}}
	}
	searcher := &fakeSearcher{results: map[string][]media.CandidateRecord{
		"b": hit(2),
		"d": hit(4),
	}}
	a := newTestAssistant(t, Deps{Searcher: searcher})

	at := a.searchFirst(context.Background(), []string{"a", "b", "c", "d"})
	require.True(t, at.found())
	assert.Equal(t, "b", at.query)
	assert.Equal(t, 2, at.candidates[0].ID)

	assert.False(t, a.searchFirst(context.Background(), nil).found())
}

func used(t *testing.T, meter *quota.Meter, userID int64, feature string) int {
	t.Helper()
	usage, err := meter.Usage(context.Background(), userID, users.PlanFree)
	require.NoError(t, err)
	for _, u := range usage {
		if u.Feature == feature {
			return u.Used
		}
	}
	return 0
}
