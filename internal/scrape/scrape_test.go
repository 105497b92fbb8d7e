package scrape

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	os.Exit(m.Run())
}

// fakeClient routes every request through a handler and records what was
// asked for.
type fakeClient struct {
	mu       sync.Mutex
	handler  func(rawURL string) (*fetch.Page, error)
	requests []string
	headers  []map[string]string
	ua       string
}

func (c *fakeClient) Get(ctx context.Context, rawURL string) (*fetch.Page, error) {
	return c.GetWithHeaders(ctx, rawURL, nil)
}

func (c *fakeClient) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string) (*fetch.Page, error) {
	c.mu.Lock()
	c.requests = append(c.requests, rawURL)
	c.headers = append(c.headers, headers)
	c.mu.Unlock()
	return c.handler(rawURL)
}

func (c *fakeClient) SetUserAgent(ua string) { c.ua = ua }

func (c *fakeClient) requested(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func htmlPage(rawURL, body string) *fetch.Page {
	return &fetch.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}
}

// fakeSleeper records requested sleeps without waiting.
type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return nil
}

func (s *fakeSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.sleeps {
		if got == d {
			n++
		}
	}
	return n
}

func testDeps(client fetch.Client, cfg config.SourceConfig) (Deps, *directory.MemoryStore, *fakeSleeper) {
	store := directory.NewMemory()
	sleeper := &fakeSleeper{}
	return Deps{
		Store:   store,
		Client:  client,
		Sleeper: sleeper,
		Config:  cfg,
	}, store, sleeper
}
