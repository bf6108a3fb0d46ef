package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Telegram is a send-only bot used as the last-resort delivery channel when
// both WhatsApp gateways are down: the broker still gets the lead, just in a
// different app.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
}

type TelegramConfig struct {
	Token string
	// ChatID is the default destination when Send gets a non-numeric "to"
	// (lead destinations are phone numbers, which Telegram can't route).
	ChatID  int64
	Timeout time.Duration
	// APIURL overrides the Bot API host. Tests only.
	APIURL string
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, configErr("telegram", "bot token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, configErr("telegram", "chat id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    cfg.APIURL,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		// NewBot calls getMe over the network. Only an API answer that
		// rejects the token is a config problem; anything else (DNS down,
		// timeout) is transient and must not disable the channel.
		var apiErr *tele.Error
		if errors.As(err, &apiErr) {
			return nil, newErr("telegram", KindConfig, err)
		}
		return nil, newErr("telegram", KindTransport, err)
	}
	return &Telegram{bot: b, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, to, text string) (Outcome, error) {
	chatID := t.chatID
	if id, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64); err == nil && id != 0 {
		chatID = id
	}

	// telebot has no context plumbing on Send; run it in a goroutine so the
	// dispatcher's cancellation is still honored.
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := t.bot.Send(tele.ChatID(chatID), text, tele.NoPreview)
		done <- result{msg: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return Outcome{}, newErr("telegram", KindTransport, ctx.Err())
	case r := <-done:
		if r.err != nil {
			var apiErr *tele.Error
			if errors.As(r.err, &apiErr) {
				return Outcome{RawResponse: apiErr.Description},
					newErr("telegram", KindRemote, r.err)
			}
			return Outcome{}, newErr("telegram", KindTransport, r.err)
		}
		raw := ""
		if r.msg != nil {
			raw = fmt.Sprintf("message_id=%d", r.msg.ID)
		}
		return Outcome{OK: true, RawResponse: raw}, nil
	}
}
