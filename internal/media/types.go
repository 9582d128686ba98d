// Package media holds the value types shared by the title identification pipeline.
package media

import (
	"context"
	"strconv"
)

// Kind is the type of a title.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// MediaQuery is one cleaned search attempt.
type MediaQuery struct {
	Raw        string
	Normalized string
	Year       string // 4 digits or empty
	Episode    string // SxxEyy or empty
	KindHint   Kind   // empty when unknown
}

// Empty reports whether there is nothing worth searching for.
func (q MediaQuery) Empty() bool {
	return q.Normalized == ""
}

// CandidateRecord is one title hit from the search provider.
type CandidateRecord struct {
	Kind             Kind    `json:"kind"`
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"originalTitle,omitempty"`
	Year             string  `json:"year,omitempty"`
	Overview         string  `json:"overview,omitempty"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"voteAverage"`
	VoteCount        int     `json:"voteCount"`
	OriginalLanguage string  `json:"originalLanguage,omitempty"`
	PosterPath       string  `json:"posterPath,omitempty"`
	Adult            bool    `json:"adult,omitempty"`
}

// Key identifies a record across locales.
func (c CandidateRecord) Key() string {
	return string(c.Kind) + ":" + strconv.Itoa(c.ID)
}

// ScoredCandidate is a candidate with its confidence and a short rationale.
type ScoredCandidate struct {
	CandidateRecord
	Score float64
	Why   string
}

// Charger takes one unit from a paid quota before an external call.
// The returned refund gives the unit back when the call fails. A nil
// Charger means the paid tier is not allowed for the caller.
type Charger func(ctx context.Context) (refund func(), err error)
