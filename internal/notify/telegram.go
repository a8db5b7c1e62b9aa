// Package notify delivers post batches to chat destinations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/koran-teknologi/koran/internal/privacy"
	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/pkg/logx"
)

const (
	telegramName       = "telegram"
	telegramAPITimeout = 15 * time.Second
	defaultRatePerSec  = 1.0
)

// Sender is the part of the Telegram Bot API the sink needs. *tele.Bot
// implements it.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramConfig configures the Telegram sink.
type TelegramConfig struct {
	Token     string
	ChannelID string // numeric chat ID or @channelname

	// RatePerSec paces messages; Telegram throttles bursts to one chat.
	RatePerSec     float64
	DisablePreview bool

	// APIURL overrides the Bot API endpoint. Empty uses api.telegram.org.
	APIURL string
}

// Telegram posts one message per post to a channel.
type Telegram struct {
	sender         Sender
	chat           tele.Recipient
	limiter        *rate.Limiter
	disablePreview bool
	redact         *privacy.Redactor
	log            logx.Logger
}

// NewTelegram creates a sink backed by the Bot API. The bot is created
// offline, so no request is made until the first send.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: telegramAPITimeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return NewTelegramWithSender(bot, cfg, log)
}

// NewTelegramWithSender creates a sink on top of an existing sender.
func NewTelegramWithSender(sender Sender, cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	chat, err := ParseChat(cfg.ChannelID)
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	// Bot API errors carry the request URL, and with it the token.
	redact, err := privacy.New([]string{cfg.Token}, privacy.BotTokenPattern)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		sender:         sender,
		chat:           chat,
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		disablePreview: cfg.DisablePreview,
		redact:         redact,
		log:            log.With(logx.String("comp", "notify"), logx.String("sink", telegramName)),
	}, nil
}

// channelUsername addresses a public channel by its @name.
type channelUsername string

func (c channelUsername) Recipient() string { return string(c) }

// ParseChat accepts a numeric chat ID (channels are negative) or an
// @channelname.
func ParseChat(id string) (tele.Recipient, error) {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return nil, errors.New("telegram: channel id is empty")
	case strings.HasPrefix(id, "@"):
		if len(id) < 2 {
			return nil, fmt.Errorf("telegram: invalid channel %q", id)
		}
		return channelUsername(id), nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: channel id %q is neither numeric nor @name", id)
	}
	return tele.ChatID(n), nil
}

func (t *Telegram) Name() string { return telegramName }

// SendPosts sends posts newest first, one message each. The first failure
// stops the batch and is returned; messages already sent stay sent.
func (t *Telegram) SendPosts(ctx context.Context, posts []source.Post) error {
	ordered := append([]source.Post(nil), posts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PublishedAt().After(ordered[j].PublishedAt())
	})

	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: t.disablePreview,
	}
	for i, p := range ordered {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram: sent %d/%d: %w", i, len(ordered), err)
		}
		if _, err := t.sender.Send(t.chat, FormatMessage(p), opts); err != nil {
			err = t.redact.Error(err)
			t.log.Error("send failed", logx.Int("index", i), logx.String("url", p.URL()), logx.Err(err))
			return fmt.Errorf("telegram: send %q (%d/%d): %w", p.Title(), i+1, len(ordered), err)
		}
	}
	t.log.Info("batch sent", logx.Int("posts", len(ordered)))
	return nil
}

// FormatMessage renders a post as a Telegram HTML message.
func FormatMessage(p source.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 <a href=\"%s\">%s</a>\n\n", html.EscapeString(p.URL()), html.EscapeString(p.Title()))
	fmt.Fprintf(&b, "📚 Source: %s\n", html.EscapeString(p.Source()))
	fmt.Fprintf(&b, "📅 Date: %s", p.PublishedAt().Format(time.DateOnly))
	return b.String()
}
