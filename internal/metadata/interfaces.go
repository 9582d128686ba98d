package metadata

import (
	"context"

	"github.com/diarybot/diarybot/internal/media"
	"github.com/diarybot/diarybot/internal/metadata/tmdb"
)

// TMDBClient defines the TMDB operations the title search needs.
type TMDBClient interface {
	IsConfigured() bool
	SearchMulti(ctx context.Context, query, language string) ([]media.CandidateRecord, error)
	SearchPerson(ctx context.Context, name, language string) ([]tmdb.PersonResult, error)
	DiscoverByCast(ctx context.Context, personIDs []int, language string) ([]media.CandidateRecord, error)
}

var _ TMDBClient = (*tmdb.Client)(nil)
