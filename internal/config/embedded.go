package config

// Build metadata and embedded API keys injected at build time via ldflags.
// Keys serve as defaults and can be overridden by environment
// variables or config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/diarybot/diarybot/internal/config.Version=1.2.0' \
//                      -X 'github.com/diarybot/diarybot/internal/config.EmbeddedTMDBKey=xxx'"
var (
	Version         = "dev"
	EmbeddedTMDBKey string
)
