package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_AllLanguagesHaveEveryKey(t *testing.T) {
	c := MustLoad()

	en := c.messages[DefaultLanguage]
	for _, lang := range []string{"ru", "uk"} {
		t.Run(lang, func(t *testing.T) {
			for key := range en {
				_, ok := c.messages[lang][key]
				assert.True(t, ok, "missing %s.%s", lang, key)
			}
		})
	}
}

func TestCatalog_Language(t *testing.T) {
	c := MustLoad()

	tests := []struct {
		in   string
		want string
	}{
		{"ru", "ru"},
		{"ru-RU", "ru"},
		{"UK", "uk"},
		{"be", "ru"},
		{"de", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Language(tt.in))
		})
	}
}

func TestCatalog_T(t *testing.T) {
	c := MustLoad()

	assert.Equal(t, "year 1999 matches", c.T("en", "why.year", "1999"))
	assert.Equal(t, "совпадает год 1999", c.T("ru-RU", "why.year", "1999"))
	assert.Equal(t, "no.such.key", c.T("ru", "no.such.key"))
}

func TestParse_RequiresEnglish(t *testing.T) {
	_, err := Parse([]byte("ru:\n  a: b\n"))
	require.Error(t, err)
}
