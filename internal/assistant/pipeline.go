package assistant

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/diarybot/diarybot/internal/llm"
	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/media/mediaquery"
	"github.com/diarybot/diarybot/internal/media/safety"
	"github.com/diarybot/diarybot/internal/media/session"
	"github.com/diarybot/diarybot/internal/media/vision"
	"github.com/diarybot/diarybot/internal/quota"
)

const (
	searchLimit        = 10
	minQueryRunes      = 6
	maxParallelLookups = 3
	maxVisionQueries   = 6
)

// Stage source tags.
const (
	SourceSearch = "search"
	SourceHints  = "hints"
	SourcePeople = "people"
	SourceVision = "vision"
	SourceLens   = "lens"
	SourceWeb    = "web"
)

// attempt is the outcome of one pipeline stage.
type attempt struct {
	candidates []media.CandidateRecord
	query      string
	source     string
}

func (at attempt) found() bool {
	return len(at.candidates) > 0
}

func (a *Assistant) media(ctx context.Context, req Request, lang string, sess *session.Session, log zerolog.Logger) Reply {
	key := req.User.SessionKey()
	text := strings.TrimSpace(req.Text)
	hasImage := len(req.Image) > 0

	if sess != nil && !hasImage {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(sess.Candidates) {
			picked := sess.Candidates[n-1]
			log.Info().Int("choice", n).Str("title", picked.Title).Msg("Candidate picked")
			return Reply{
				Kind:       ReplyChoice,
				Query:      sess.Query,
				Text:       a.deps.Ranker.FormatChoice(picked, lang),
				Candidates: []media.ScoredCandidate{{CandidateRecord: picked, Score: 1}},
			}
		}
		if mediaquery.AsksForName(text) {
			return Reply{
				Kind:  ReplyOptions,
				Query: sess.Query,
				Text:  a.deps.Ranker.FormatOptions(sess.Query, sess.Candidates, lang),
			}
		}
	}

	base := text
	if sess != nil && !hasImage && IsHint(text) {
		prev := sess.Query
		if mediaquery.ExtractYear(text) != "" {
			// A new year replaces the old one instead of trailing it.
			prev = mediaquery.StripYear(prev, mediaquery.ExtractYear(prev))
		}
		base = strings.TrimSpace(prev + " " + text)
	}
	q := mediaquery.Parse(base)

	if !hasImage && utf8.RuneCountInString(q.Normalized) < minQueryRunes && mediaquery.HasWhatMovieMarker(base) {
		if sess == nil {
			a.deps.Sessions.Set(key, q.Normalized, nil)
		}
		a.enterMedia(ctx, req.User)
		return Reply{Kind: ReplyNotFound, Query: q.Normalized, Text: a.deps.Catalog.T(lang, "media.not_found")}
	}

	var webExceeded, imageExceeded atomic.Bool
	result, imageQuery := a.runChain(ctx, req, q, base, lang, &webExceeded, &imageExceeded, log)

	if !result.found() {
		stored := q.Normalized
		if stored == "" {
			stored = imageQuery
		}
		a.deps.Sessions.Set(key, stored, nil)
		a.enterMedia(ctx, req.User)

		log.Info().Str("query", stored).Msg("Media pipeline exhausted")
		if hasImage && imageExceeded.Load() {
			return Reply{Kind: ReplyQuota, Query: stored, Text: a.deps.Catalog.T(lang, "media.quota")}
		}
		msg := a.deps.Catalog.T(lang, "media.not_found")
		if webExceeded.Load() {
			msg += "\n\n" + a.deps.Catalog.T(lang, "media.paid_note")
		}
		return Reply{Kind: ReplyNotFound, Query: stored, Text: msg}
	}

	candidates := safety.Scrub(result.candidates)
	year := q.Year
	if year == "" {
		year = mediaquery.ExtractYear(result.query)
	}
	resp := a.deps.Ranker.Format(result.query, candidates, year, lang, result.source)

	ranked := make([]media.CandidateRecord, len(resp.Ranked))
	for i, c := range resp.Ranked {
		ranked[i] = c.CandidateRecord
	}
	a.deps.Sessions.Set(key, result.query, ranked)
	a.enterMedia(ctx, req.User)

	log.Info().
		Str("query", result.query).
		Str("source", result.source).
		Bool("confident", resp.Confident).
		Float64("top_score", resp.TopScore).
		Int("candidates", len(ranked)).
		Msg("Media pipeline answered")

	return Reply{
		Kind:       ReplyAnswer,
		Text:       resp.Text,
		Confident:  resp.Confident,
		Query:      result.query,
		Source:     result.source,
		Candidates: resp.Ranked,
	}
}

// runChain tries the stages in cost order and stops at the first that
// finds anything: direct search, hints from the text, the image stages,
// then web-derived queries. imageQuery is the best text the image
// stages produced, used for the web stage when there is no caption.
func (a *Assistant) runChain(ctx context.Context, req Request, q media.MediaQuery, base, lang string, webExceeded, imageExceeded *atomic.Bool, log zerolog.Logger) (attempt, string) {
	if q.Normalized != "" && mediaquery.IsGoodCandidate(q.Normalized) {
		at := a.stage(log, SourceSearch, func() attempt {
			return attempt{candidates: a.deps.Searcher.Search(ctx, q.Normalized, searchLimit), query: q.Normalized, source: SourceSearch}
		})
		if at.found() {
			return at, ""
		}
	}

	if base != "" && !mediaquery.LooksLikeFreeformDescription(base) {
		at := a.stage(log, SourceHints, func() attempt {
			return a.hintStage(ctx, q, base)
		})
		if at.found() {
			return at, ""
		}
	}

	var imageQuery string
	if len(req.Image) > 0 {
		var at attempt
		at, imageQuery = a.imageStages(ctx, req, lang, imageExceeded, log)
		if at.found() {
			return at, imageQuery
		}
	}

	webQuery := q.Normalized
	if webQuery == "" {
		webQuery = imageQuery
	}
	if webQuery == "" || a.deps.Web == nil {
		return attempt{}, imageQuery
	}
	at := a.stage(log, SourceWeb, func() attempt {
		queries, tiers := a.deps.Web.Candidates(ctx, webQuery, a.charger(req.User, quota.FeatureWebPaid, webExceeded))
		log.Debug().Strs("queries", queries).Str("tiers", tiers).Msg("Web candidates")
		at := a.searchFirst(ctx, queries)
		at.source = SourceWeb
		if tiers != "" {
			at.source += ":" + tiers
		}
		return at
	})
	return at, imageQuery
}

// hintStage retries the search with keywords and actor names pulled from
// the text itself.
func (a *Assistant) hintStage(ctx context.Context, q media.MediaQuery, base string) attempt {
	if kw := KeywordQuery(base, q.Year); kw != "" && !strings.EqualFold(kw, q.Normalized) && mediaquery.IsGoodCandidate(kw) {
		if found := a.deps.Searcher.Search(ctx, kw, searchLimit); len(found) > 0 {
			return attempt{candidates: found, query: kw, source: SourceHints}
		}
	}
	if names := ActorNames(base); len(names) > 0 {
		if found := a.deps.Searcher.SearchByPeople(ctx, names, searchLimit); len(found) > 0 {
			return attempt{candidates: found, query: strings.Join(names, " "), source: SourcePeople}
		}
	}
	return attempt{}
}

// imageStages reads the frame with the vision model, then with the
// reverse-image lookup. Both are metered.
func (a *Assistant) imageStages(ctx context.Context, req Request, lang string, exceeded *atomic.Bool, log zerolog.Logger) (attempt, string) {
	var best string

	if a.deps.LLM != nil && a.deps.LLM.IsConfigured() {
		var hints *vision.Hints
		at := a.stage(log, SourceVision, func() attempt {
			var queries []string
			queries, hints = a.visionQueries(ctx, req, exceeded)
			if len(queries) > 0 {
				best = queries[0]
			}
			at := a.searchFirst(ctx, queries)
			at.source = SourceVision
			return at
		})
		if at.found() {
			return at, best
		}
		if people := visionPeople(hints); len(people) > 0 {
			at := a.stage(log, SourcePeople, func() attempt {
				found := a.deps.Searcher.SearchByPeople(ctx, people, searchLimit)
				return attempt{candidates: found, query: strings.Join(people, " "), source: SourceVision + "+" + SourcePeople}
			})
			if at.found() {
				return at, best
			}
		}
	}

	if a.deps.Lens != nil {
		at := a.stage(log, SourceLens, func() attempt {
			queries, tag := a.deps.Lens.ImageCandidates(ctx, req.Image, req.ImageExt, a.charger(req.User, quota.FeatureLens, exceeded), lang)
			log.Debug().Strs("queries", queries).Str("tag", tag).Msg("Image candidates")
			if best == "" && len(queries) > 0 {
				best = queries[0]
			}
			at := a.searchFirst(ctx, queries)
			at.source = SourceLens
			return at
		})
		if at.found() {
			return at, best
		}
	}
	return attempt{}, best
}

func (a *Assistant) visionQueries(ctx context.Context, req Request, exceeded *atomic.Bool) ([]string, *vision.Hints) {
	charge := a.charger(req.User, quota.FeatureVision, exceeded)
	if charge == nil {
		return nil, nil
	}
	refund, err := charge(ctx)
	if err != nil {
		return nil, nil
	}

	prompt := "Identify the movie or series in this frame."
	if caption := strings.TrimSpace(req.Text); caption != "" {
		prompt += " The user says: " + caption
	}
	output, err := a.deps.LLM.Vision(ctx, llm.VisionPrompt, prompt, req.Image, mimeType(req.ImageExt))
	if err != nil {
		refund()
		a.logger.Warn().Err(err).Msg("Vision request failed")
		return nil, nil
	}

	hints, ok := vision.ExtractHints(output)
	queries := vision.BuildQueries(hints)
	if !ok {
		// free-text answer without a hint object
		for _, extra := range []string{vision.ExtractSearchQuery(output), vision.ExtractTitleGuess(output)} {
			if s := mediaquery.Sanitize(extra); s != "" && mediaquery.IsGoodCandidate(s) && !containsFold(queries, s) {
				queries = append(queries, s)
			}
		}
	}
	if len(queries) > maxVisionQueries {
		queries = queries[:maxVisionQueries]
	}
	return queries, hints
}

// searchFirst looks the queries up with bounded concurrency and returns
// the hits of the lowest-index query that found anything. Queries after
// a known hit are not started.
func (a *Assistant) searchFirst(ctx context.Context, queries []string) attempt {
	if len(queries) == 0 {
		return attempt{}
	}

	results := make([][]media.CandidateRecord, len(queries))
	var best atomic.Int64
	best.Store(math.MaxInt64)

	sem := semaphore.NewWeighted(maxParallelLookups)
	var wg sync.WaitGroup
	for i, q := range queries {
		if int64(i) > best.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if int64(i) > best.Load() {
			sem.Release(1)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			found := a.safeSearch(ctx, q)
			if len(found) == 0 {
				return
			}
			results[i] = found
			for {
				cur := best.Load()
				if int64(i) >= cur || best.CompareAndSwap(cur, int64(i)) {
					return
				}
			}
		}()
	}
	wg.Wait()

	for i, r := range results {
		if len(r) > 0 {
			return attempt{candidates: r, query: queries[i]}
		}
	}
	return attempt{}
}

func (a *Assistant) safeSearch(ctx context.Context, query string) (out []media.CandidateRecord) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("query", query).Msg("Title search panicked")
			out = nil
		}
	}()
	return a.deps.Searcher.Search(ctx, query, searchLimit)
}

// stage runs one pipeline stage. A panic inside it is logged and becomes
// an empty result so the next stage still runs.
func (a *Assistant) stage(log zerolog.Logger, name string, fn func() attempt) (at attempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stage", name).Msg("Pipeline stage panicked")
			at = attempt{}
		}
	}()
	at = fn()
	log.Debug().
		Str("stage", name).
		Str("query", at.query).
		Int("candidates", len(at.candidates)).
		Msg("Pipeline stage finished")
	return at
}

func visionPeople(h *vision.Hints) []string {
	if h == nil {
		return nil
	}
	people := append(append([]string{}, h.Actors...), h.Cast...)
	if len(people) > maxActorNames {
		people = people[:maxActorNames]
	}
	return people
}

func mimeType(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if mediaquery.Fold(v) == mediaquery.Fold(s) {
			return true
		}
	}
	return false
}
