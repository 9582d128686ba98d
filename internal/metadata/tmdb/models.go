package tmdb

// SearchMultiResponse is the response from TMDB multi search.
type SearchMultiResponse struct {
	Page         int           `json:"page"`
	Results      []MultiResult `json:"results"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
}

// MultiResult is one movie, TV or person hit from multi search. Movies
// use title/release_date, TV uses name/first_air_date.
type MultiResult struct {
	ID               int     `json:"id"`
	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	OriginalTitle    string  `json:"original_title"`
	OriginalName     string  `json:"original_name"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	PosterPath       *string `json:"poster_path"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	Adult            bool    `json:"adult"`
}

// DiscoverMovieResponse is the response from TMDB movie discovery.
type DiscoverMovieResponse struct {
	Page    int           `json:"page"`
	Results []MultiResult `json:"results"`
}

// SearchPersonResponse is the response from TMDB person search.
type SearchPersonResponse struct {
	Page    int            `json:"page"`
	Results []PersonResult `json:"results"`
}

// PersonResult is a person from TMDB search results.
type PersonResult struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
	Adult              bool    `json:"adult"`
}

// ErrorResponse is an error from the TMDB API.
type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Success       bool   `json:"success"`
}
