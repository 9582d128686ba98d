// Package intent routes a chat message to the media pipeline or to the
// general assistant by keyword matching.
package intent

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/diarybot/diarybot/internal/media/mediaquery"
)

// Intent is the detected purpose of a message.
type Intent string

const (
	Media      Intent = "media"
	MediaImage Intent = "media_image"
	Weather    Intent = "weather"
	Shopping   Intent = "shopping"
	General    Intent = "general"
)

// IsMedia reports whether the media pipeline should handle the message.
func (i Intent) IsMedia() bool {
	return i == Media || i == MediaImage
}

// Stems are matched against the start of each folded token so that
// inflected forms ("фильме", "сериалы") hit.
var (
	mediaStems = foldAll(
		"movie", "film", "series", "sitcom", "cartoon", "anime", "episode", "season", "trailer",
		"actor", "actress", "imdb", "tmdb", "netflix", "hbo",
		"фильм", "кино", "сериал", "мульт", "аниме", "серия", "серии", "сезон", "трейлер", "актер", "актрис", "режисс",
		"фільм", "кіно", "серіал", "серія", "актор", "акторк",
	)
	mediaPhrases = foldAll(
		"what movie", "which movie", "what film", "what show", "what series", "what's it called",
		"what is it called", "name of the movie", "как называется", "как назывался", "як називається",
	)
	weatherStems = foldAll(
		"weather", "forecast", "rain", "snow", "temperature", "umbrella", "sunny",
		"погод", "прогноз", "дожд", "снег", "температур", "зонт", "жара", "мороз",
		"дощ", "сніг", "спек",
	)
	shoppingStems = foldAll(
		"buy", "shop", "store", "price", "discount", "order", "delivery", "cheap", "sale",
		"купить", "куплю", "магазин", "цена", "цены", "скидк", "заказ", "доставк", "дешев",
		"купити", "ціна", "знижк", "замовит",
	)
)

// Detect classifies text. Ties favour media, then weather, then shopping;
// nothing matched is General.
func Detect(text string) Intent {
	folded := mediaquery.Fold(text)
	if folded == "" {
		return General
	}
	tokens := mediaquery.Tokens(folded)

	media := countStems(tokens, mediaStems)
	for _, p := range mediaPhrases {
		if strings.Contains(folded, p) {
			media++
		}
	}
	weather := countStems(tokens, weatherStems)
	shopping := countStems(tokens, shoppingStems)

	switch {
	case media == 0 && weather == 0 && shopping == 0:
		return General
	case media >= weather && media >= shopping:
		return Media
	case weather >= shopping:
		return Weather
	default:
		return Shopping
	}
}

// ForMessage is Detect with images always routed to the media pipeline.
func ForMessage(text string, hasImage bool) Intent {
	if hasImage {
		return MediaImage
	}
	return Detect(text)
}

func countStems(tokens []string, stems []string) int {
	n := 0
	for _, t := range tokens {
		for _, s := range stems {
			if strings.HasPrefix(t, s) {
				n++
				break
			}
		}
	}
	return n
}

func foldAll(words ...string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = mediaquery.Fold(w)
	}
	return out
}

const maxFollowUpRunes = 60

var smallTalk = foldAll(
	"thanks", "thank you", "thx", "ok", "okay", "hi", "hello", "bye", "good night", "lol",
	"спасибо", "благодарю", "ок", "окей", "привет", "пока", "спокойной ночи", "ясно", "понятно",
	"дякую", "привіт", "бувай", "зрозуміло",
)

// Route is ForMessage aware of an ongoing media conversation: while one is
// active, a short message matching no keyword set (a number, a year, an
// actor name) is treated as a media follow-up rather than general chat.
func Route(text string, hasImage, mediaActive bool) Intent {
	in := ForMessage(text, hasImage)
	if in != General || !mediaActive {
		return in
	}
	if looksLikeFollowUp(text) {
		return Media
	}
	return General
}

func looksLikeFollowUp(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxFollowUpRunes {
		return false
	}
	folded := strings.Trim(mediaquery.Fold(text), " !.?,")
	for _, s := range smallTalk {
		if folded == s {
			return false
		}
	}
	if mediaquery.AsksForName(text) {
		return true
	}
	if _, err := strconv.Atoi(folded); err == nil {
		return true
	}
	return mediaquery.IsGoodCandidate(text)
}
