package privacy

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCompile(t *testing.T) {
	patterns, err := Compile([]string{`(?i)authorization: \S+`, BotTokenPattern})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 2 {
		t.Errorf("got %d patterns, want 2", len(patterns))
	}
	if _, err := Compile([]string{`[invalid`}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if patterns, err := Compile(nil); err != nil || len(patterns) != 0 {
		t.Fatalf("compile(nil) = %v, %v", patterns, err)
	}
}

func TestApply(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)authorization: \S+`, `(?i)chat_id=-?\d+`})
	tests := []struct {
		in, want string
	}{
		{"Authorization: Bearer-abc", "[REDACTED]"},
		{"chat_id=-100123 and chat_id=42", "[REDACTED] and [REDACTED]"},
		{"nothing to redact here", "nothing to redact here"},
	}
	for _, tt := range tests {
		if got := Apply(tt.in, patterns); got != tt.want {
			t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := Apply("unchanged", nil); got != "unchanged" {
		t.Errorf("got %q", got)
	}
}

const testToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

func TestRedactor_LiteralSecret(t *testing.T) {
	r, err := New([]string{"s3cr3t+value", "  "})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := r.String("password=s3cr3t+value; again s3cr3t+value")
	want := "password=[REDACTED]; again [REDACTED]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactor_BotTokenInURL(t *testing.T) {
	r, err := New(nil, BotTokenPattern)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	in := `Post "https://api.telegram.org/bot` + testToken + `/sendMessage": dial tcp: i/o timeout`
	got := r.String(in)
	if strings.Contains(got, testToken) {
		t.Fatalf("token leaked: %q", got)
	}
	if !strings.Contains(got, "/bot[REDACTED]/sendMessage") {
		t.Errorf("got %q", got)
	}
}

func TestRedactor_ErrorKeepsChain(t *testing.T) {
	r, _ := New([]string{testToken})
	base := errors.New("get https://api.telegram.org/bot" + testToken + "/getMe")
	wrapped := fmt.Errorf("telegram: %w", base)

	got := r.Error(wrapped)
	if strings.Contains(got.Error(), testToken) {
		t.Fatalf("token leaked: %q", got.Error())
	}
	if !errors.Is(got, base) {
		t.Error("redacted error lost its chain")
	}

	clean := errors.New("nothing to hide")
	if r.Error(clean) != clean {
		t.Error("clean errors should be returned as is")
	}
	if r.Error(nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestRedactor_Nil(t *testing.T) {
	var r *Redactor
	if got := r.String("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
	if _, err := New(nil, "[bad"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
