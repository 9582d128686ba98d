package lens

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/media"
)

// Source tags.
const (
	SourceLens       = "lens"
	SourceLensDenied = "lens-denied"
)

// Lookuper is the reverse-image call the extractor depends on.
type Lookuper interface {
	IsConfigured() bool
	Lookup(ctx context.Context, img []byte, ext, lang string) ([]string, error)
}

// Extractor charges the lens quota, calls the lookup and ranks its output.
type Extractor struct {
	client Lookuper
	logger zerolog.Logger
}

func NewExtractor(client Lookuper, logger zerolog.Logger) *Extractor {
	return &Extractor{
		client: client,
		logger: logger.With().Str("component", "image-candidates").Logger(),
	}
}

// ImageCandidates returns up to SearchLimit search-ready strings for img.
// A nil charger means the caller's plan does not allow the lookup. A
// failed lookup refunds its unit and yields no candidates.
func (e *Extractor) ImageCandidates(ctx context.Context, img []byte, ext string, charger media.Charger, lang string) ([]string, string) {
	if len(img) == 0 || e.client == nil || !e.client.IsConfigured() || charger == nil {
		return nil, ""
	}

	refund, err := charger(ctx)
	if err != nil {
		e.logger.Info().Err(err).Msg("Reverse image lookup not charged")
		return nil, SourceLensDenied
	}

	raw, err := e.client.Lookup(ctx, img, ext, lang)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Reverse image lookup failed")
		if refund != nil {
			refund()
		}
		return nil, ""
	}

	picked := PickBest(raw, SearchLimit)
	e.logger.Debug().
		Int("raw", len(raw)).
		Strs("candidates", picked).
		Msg("Image candidates extracted")

	if len(picked) == 0 {
		return nil, ""
	}
	return picked, SourceLens
}
