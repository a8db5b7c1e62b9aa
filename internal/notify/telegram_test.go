package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/pkg/logx"
)

type sent struct {
	to   string
	text string
	opts *tele.SendOptions
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	failAt  int // 1-based; 0 never fails
	failErr error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("telegram: Too Many Requests: retry after 5 (429)")
	}
	s := sent{to: to.Recipient(), text: what.(string)}
	if len(opts) > 0 {
		s.opts, _ = opts[0].(*tele.SendOptions)
	}
	f.sent = append(f.sent, s)
	return &tele.Message{ID: len(f.sent)}, nil
}

func mustPost(t *testing.T, title, url string, at time.Time, src string) source.Post {
	t.Helper()
	p, err := source.NewPost(title, url, at, src)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func fastConfig(channel string) TelegramConfig {
	return TelegramConfig{ChannelID: channel, RatePerSec: 1000}
}

func TestFormatMessage(t *testing.T) {
	p := mustPost(t, "Caching <fast> & cheap", "https://netflixtechblog.com/caching?x=1", time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC), "Netflix Tech Blog")
	got := FormatMessage(p)
	want := "📝 <a href=\"https://netflixtechblog.com/caching\">Caching &lt;fast&gt; &amp; cheap</a>\n\n" +
		"📚 Source: Netflix Tech Blog\n" +
		"📅 Date: 2024-03-01"
	if got != want {
		t.Errorf("message:\n%s\nwant:\n%s", got, want)
	}
}

func TestTelegram_SendPostsNewestFirst(t *testing.T) {
	f := &fakeSender{}
	sink, err := NewTelegramWithSender(f, fastConfig("-1001234567890"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	posts := []source.Post{
		mustPost(t, "Older", "https://example.com/older", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "A"),
		mustPost(t, "Newer", "https://example.com/newer", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "B"),
	}
	if err := sink.SendPosts(context.Background(), posts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(f.sent))
	}
	if !strings.Contains(f.sent[0].text, "Newer") || !strings.Contains(f.sent[1].text, "Older") {
		t.Errorf("messages out of order: %q, %q", f.sent[0].text, f.sent[1].text)
	}
	if f.sent[0].to != "-1001234567890" {
		t.Errorf("recipient = %q", f.sent[0].to)
	}
	if f.sent[0].opts == nil || f.sent[0].opts.ParseMode != tele.ModeHTML {
		t.Errorf("opts = %+v, want HTML parse mode", f.sent[0].opts)
	}
	if posts[0].Title() != "Older" {
		t.Error("SendPosts reordered the caller's slice")
	}
}

func TestTelegram_FirstFailureAborts(t *testing.T) {
	f := &fakeSender{failAt: 2}
	sink, _ := NewTelegramWithSender(f, fastConfig("@koranteknologi"), logx.Nop())

	var posts []source.Post
	for i := range 3 {
		posts = append(posts, mustPost(t, "Post", "https://example.com/p", time.Date(2024, 3, 3-i, 0, 0, 0, 0, time.UTC), "A"))
	}
	err := sink.SendPosts(context.Background(), posts)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want the send failure", err)
	}
	if len(f.sent) != 1 {
		t.Errorf("sent %d messages before failing, want 1", len(f.sent))
	}
	if f.sent[0].to != "@koranteknologi" {
		t.Errorf("recipient = %q", f.sent[0].to)
	}
}

func TestTelegram_ErrorsDoNotLeakToken(t *testing.T) {
	const token = "987654321:AAFakeTokenFakeTokenFakeTokenFake01"
	base := errors.New(`Post "https://api.telegram.org/bot` + token + `/sendMessage": context deadline exceeded`)
	f := &fakeSender{failAt: 1, failErr: base}
	cfg := fastConfig("@koranteknologi")
	cfg.Token = token
	sink, err := NewTelegramWithSender(f, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	post := mustPost(t, "Post", "https://example.com/p", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "A")
	err = sink.SendPosts(context.Background(), []source.Post{post})
	if err == nil {
		t.Fatal("expected send error")
	}
	if strings.Contains(err.Error(), token) {
		t.Fatalf("token leaked into error: %v", err)
	}
	if !strings.Contains(err.Error(), "bot[REDACTED]/sendMessage") {
		t.Errorf("err = %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("redaction broke the error chain")
	}
}

func TestTelegram_CancelledContext(t *testing.T) {
	f := &fakeSender{}
	sink, _ := NewTelegramWithSender(f, TelegramConfig{ChannelID: "42", RatePerSec: 0.001}, logx.Nop())
	posts := []source.Post{
		mustPost(t, "One", "https://example.com/1", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "A"),
		mustPost(t, "Two", "https://example.com/2", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "A"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sink.SendPosts(ctx, posts); err == nil {
		t.Fatal("expected error when the limiter cannot wait")
	}
	if len(f.sent) != 1 {
		t.Errorf("sent = %d, want only the first message before pacing kicked in", len(f.sent))
	}
}

func TestParseChat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"-1001234567890", "-1001234567890", false},
		{" 42 ", "42", false},
		{"@koranteknologi", "@koranteknologi", false},
		{"", "", true},
		{"@", "", true},
		{"koranteknologi", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChat(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseChat(%q) should fail", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChat(%q): %v", tt.in, err)
			}
			if got.Recipient() != tt.want {
				t.Errorf("recipient = %q, want %q", got.Recipient(), tt.want)
			}
		})
	}
}

func TestNewTelegram_Validation(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{ChannelID: "42"}, logx.Nop()); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "123:abc"}, logx.Nop()); err == nil {
		t.Error("expected error for empty channel")
	}
}

func TestNewTelegram_BotAPI(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		body = string(b)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1709251200,"chat":{"id":-100123,"type":"channel"},"text":"ok"}}`)
	}))
	defer srv.Close()

	sink, err := NewTelegram(TelegramConfig{Token: "123:abc", ChannelID: "-100123", APIURL: srv.URL, RatePerSec: 1000}, logx.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := mustPost(t, "Hello", "https://example.com/hello", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "A")
	if err := sink.SendPosts(context.Background(), []source.Post{p}); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "/sendMessage") {
		t.Fatalf("paths = %v, want one sendMessage call", paths)
	}
	if !strings.Contains(body, "-100123") || !strings.Contains(body, "HTML") {
		t.Errorf("request body = %s", body)
	}
}
