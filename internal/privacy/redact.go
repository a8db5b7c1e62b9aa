// Package privacy scrubs credentials from text that leaves the process:
// log lines, stored cycle history and HTTP responses.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// BotTokenPattern matches a Telegram bot token ("123456:AA...") wherever it
// appears, including inside Bot API URLs.
const BotTokenPattern = `\d{5,}:[A-Za-z0-9_-]{30,}`

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redactor replaces known secrets and secret-shaped substrings.
// The zero value and a nil *Redactor pass text through unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New builds a redactor for the literal secrets (blank ones are skipped)
// plus any extra regex patterns.
func New(secrets []string, patterns ...string) (*Redactor, error) {
	all := make([]string, 0, len(secrets)+len(patterns))
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			all = append(all, regexp.QuoteMeta(s))
		}
	}
	all = append(all, patterns...)
	compiled, err := Compile(all)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	return Apply(s, r.patterns)
}

// Error returns err with its message redacted. errors.Is and errors.As
// still see the original chain.
func (r *Redactor) Error(err error) error {
	if err == nil || r == nil {
		return err
	}
	msg := r.String(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
