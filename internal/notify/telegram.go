package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// telegramSender sends through the Bot API. It never polls for updates.
type telegramSender struct {
	bot *tele.Bot
}

func newTelegramSender(cfg Config) (*telegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  newHTTPClient(cfg.Timeout),
	})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b}, nil
}

func (s *telegramSender) Send(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, opts)
	return err
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
