package lens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(config.LensConfig{BaseURL: server.URL, APIKey: "lens-key", Timeout: 2}, zerolog.Nop())
}

func TestClient_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer lens-key", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "ru", r.FormValue("lang"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "image.png", header.Filename)
		assert.Equal(t, []byte("pixels"), data)

		fmt.Fprint(w, `{"results":[{"title":"Deep Water (2022)"},"Начало",{"url":"x"}],"best_guess":"deep water film"}`)
	}))
	defer server.Close()

	got, err := newTestClient(server).Lookup(context.Background(), []byte("pixels"), ".PNG", "ru")
	require.NoError(t, err)
	assert.Equal(t, []string{"Deep Water (2022)", "Начало", "deep water film"}, got)
}

func TestClient_LookupErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server).Lookup(context.Background(), []byte("x"), "jpg", "")
	assert.ErrorIs(t, err, ErrAPIError)

	unconfigured := NewClient(config.LensConfig{}, zerolog.Nop())
	assert.False(t, unconfigured.IsConfigured())
	_, err = unconfigured.Lookup(context.Background(), []byte("x"), "jpg", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseResponse(t *testing.T) {
	got, err := ParseResponse([]byte(`["Heat 1995", "", "Ronin"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Heat 1995", "Ronin"}, got)

	got, err = ParseResponse([]byte(`{"visual_matches":[{"name":"Dark"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Dark"}, got)

	_, err = ParseResponse([]byte(`not json`))
	assert.Error(t, err)
}

type fakeLookuper struct {
	configured bool
	results    []string
	err        error
	calls      atomic.Int32
}

func (f *fakeLookuper) IsConfigured() bool { return f.configured }

func (f *fakeLookuper) Lookup(ctx context.Context, img []byte, ext, lang string) ([]string, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func TestExtractor_ImageCandidates(t *testing.T) {
	img := []byte("pixels")

	t.Run("ranked output", func(t *testing.T) {
		fake := &fakeLookuper{configured: true, results: []string{"subscribe for more edits", "✨ Film: Deep Water(2022) — official trailer"}}
		var charged atomic.Int32
		charger := func(ctx context.Context) (func(), error) {
			charged.Add(1)
			return func() { t.Error("unexpected refund") }, nil
		}

		got, source := NewExtractor(fake, zerolog.Nop()).ImageCandidates(context.Background(), img, "jpg", charger, "en")

		assert.Equal(t, []string{"Deep Water 2022"}, got)
		assert.Equal(t, SourceLens, source)
		assert.Equal(t, int32(1), charged.Load())
	})

	t.Run("not allowed", func(t *testing.T) {
		fake := &fakeLookuper{configured: true}
		got, source := NewExtractor(fake, zerolog.Nop()).ImageCandidates(context.Background(), img, "jpg", nil, "en")
		assert.Nil(t, got)
		assert.Empty(t, source)
		assert.Equal(t, int32(0), fake.calls.Load())
	})

	t.Run("quota refused", func(t *testing.T) {
		fake := &fakeLookuper{configured: true}
		charger := func(ctx context.Context) (func(), error) { return nil, errors.New("quota exceeded") }

		got, source := NewExtractor(fake, zerolog.Nop()).ImageCandidates(context.Background(), img, "jpg", charger, "en")

		assert.Nil(t, got)
		assert.Equal(t, SourceLensDenied, source)
		assert.Equal(t, int32(0), fake.calls.Load())
	})

	t.Run("failed lookup refunds", func(t *testing.T) {
		fake := &fakeLookuper{configured: true, err: ErrAPIError}
		var refunds atomic.Int32
		charger := func(ctx context.Context) (func(), error) {
			return func() { refunds.Add(1) }, nil
		}

		got, _ := NewExtractor(fake, zerolog.Nop()).ImageCandidates(context.Background(), img, "jpg", charger, "en")

		assert.Nil(t, got)
		assert.Equal(t, int32(1), refunds.Load())
	})
}
