package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/internal/store"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	name  string
	posts []source.Post
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchLatestPosts(context.Context) ([]source.Post, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, &source.FetchError{Source: s.name, Err: s.err}
	}
	return append([]source.Post(nil), s.posts...), nil
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]source.Post
	err     error
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) SendPosts(_ context.Context, posts []source.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]source.Post(nil), posts...))
	return s.err
}

func (s *stubSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type cliEnv struct {
	dir    string
	dbPath string
	sink   *stubSink
}

// setupCLI points the package at a temp config dir, stubs the sources and
// the sink, and restores all package state on cleanup.
func setupCLI(t *testing.T, extraYAML string, srcs ...source.Source) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "koran.db")
	content := "storage:\n" +
		"  path: \"" + dbPath + "\"\n" +
		"log:\n" +
		"  level: error\n" +
		extraYAML
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	oldConfigDir, oldLogLevel := configDir, logLevel
	oldBuild, oldSink, oldNow := buildSources, newSink, now
	oldDays, oldSince, oldDry, oldFormat, oldWM, oldNoColor := fetchDays, fetchSince, fetchDryRun, fetchFormat, fetchWatermark, noColor
	t.Cleanup(func() {
		configDir, logLevel = oldConfigDir, oldLogLevel
		buildSources, newSink, now = oldBuild, oldSink, oldNow
		fetchDays, fetchSince, fetchDryRun, fetchFormat, fetchWatermark, noColor = oldDays, oldSince, oldDry, oldFormat, oldWM, oldNoColor
	})

	env := &cliEnv{dir: dir, dbPath: dbPath, sink: &stubSink{}}
	configDir = dir
	logLevel = ""
	now = func() time.Time { return testNow }
	buildSources = func(*app) ([]source.Source, error) { return srcs, nil }
	newSink = func(*app) (ingest.Sink, error) { return env.sink, nil }

	fetchDays = 1
	fetchSince = ""
	fetchDryRun = false
	fetchFormat = "terminal"
	fetchWatermark = ""
	noColor = true
	return env
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func mustPost(t *testing.T, title string, at time.Time, src string) source.Post {
	t.Helper()
	slug := strings.ReplaceAll(strings.ToLower(title), " ", "-")
	p, err := source.NewPost(title, "https://example.com/"+slug, at, src)
	if err != nil {
		t.Fatalf("NewPost(%q): %v", title, err)
	}
	return p
}

func openStoreForTest(t *testing.T, path string) *store.Store {
	t.Helper()

	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(reader)
		done <- out
	}()
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out := <-done
	_ = reader.Close()
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func requireNotContains(t *testing.T, got, unwanted string) {
	t.Helper()

	if strings.Contains(got, unwanted) {
		t.Fatalf("expected output not to contain %q, got:\n%s", unwanted, got)
	}
}
