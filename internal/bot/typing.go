package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultTypingInterval = 4 * time.Second

// startTyping sends the "typing" chat action until the returned stop
// function is called. stop cancels the ticker goroutine and waits for it.
func startTyping(ctx context.Context, api API, chatID int64, interval time.Duration) (stop func()) {
	if api == nil || chatID == 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = defaultTypingInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_, _ = api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
