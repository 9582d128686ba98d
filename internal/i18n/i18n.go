// Package i18n holds the bot's user-facing strings in Russian, Ukrainian and English.
package i18n

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var catalogYAML []byte

const DefaultLanguage = "en"

// Catalog resolves message keys per language.
type Catalog struct {
	messages map[string]map[string]string
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for package initialization and tests.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads a catalog document of the form language -> key -> text.
func Parse(data []byte) (*Catalog, error) {
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	if _, ok := messages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("message catalog has no %q section", DefaultLanguage)
	}
	return &Catalog{messages: messages}, nil
}

// Language maps an arbitrary language tag ("ru-RU", "uk", "EN") to a
// supported catalog language.
func (c *Catalog) Language(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if tag == "be" {
		tag = "ru"
	}
	if _, ok := c.messages[tag]; ok {
		return tag
	}
	return DefaultLanguage
}

// T returns the message for key in lang, formatted with args. Missing
// translations fall back to English, then to the key itself.
func (c *Catalog) T(lang, key string, args ...any) string {
	msg, ok := c.messages[c.Language(lang)][key]
	if !ok {
		msg, ok = c.messages[DefaultLanguage][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
