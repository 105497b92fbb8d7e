package importer

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/internal/scrape"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	os.Exit(m.Run())
}

type stubClient struct {
	mu  sync.Mutex
	uas []string
}

func (c *stubClient) Get(ctx context.Context, rawURL string) (*fetch.Page, error) {
	return &fetch.Page{URL: rawURL, StatusCode: 200}, nil
}

func (c *stubClient) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string) (*fetch.Page, error) {
	return c.Get(ctx, rawURL)
}

func (c *stubClient) SetUserAgent(ua string) {
	c.mu.Lock()
	c.uas = append(c.uas, ua)
	c.mu.Unlock()
}

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// stubSource imports a fixed count or fails, recording its invocations.
type stubSource struct {
	name     string
	count    int
	err      error
	keywords *[]string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Import(ctx context.Context, keyword, location string) (int, error) {
	if s.keywords != nil {
		*s.keywords = append(*s.keywords, keyword)
	}
	return s.count, s.err
}

func stubFactory(src *stubSource) scrape.Factory {
	return func(scrape.Deps) scrape.Source { return src }
}

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{UserAgents: []string{"ua-test"}},
	}
}

func newOrchestrator(store directory.Store, registry *scrape.Registry) (*Orchestrator, *stubClient) {
	client := &stubClient{}
	o := New(store, client, registry, nil, testConfig()).WithSleeper(instantSleeper{})
	return o, client
}

func TestRun_ImportsEveryKeywordSourcePair(t *testing.T) {
	var alphaKeywords []string
	registry := scrape.NewRegistry()
	registry.Register("alpha", stubFactory(&stubSource{name: "alpha", count: 3, keywords: &alphaKeywords}))
	registry.Register("beta", stubFactory(&stubSource{name: "beta", count: 2}))

	store := directory.NewMemory()
	o, client := newOrchestrator(store, registry)

	summary, err := o.Run(context.Background(), []string{"restaurant", "coiffeur"}, "Paris", registry.Names())
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Imported)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 6, summary.BySource["alpha"])
	assert.Equal(t, 4, summary.BySource["beta"])
	assert.Equal(t, []string{"restaurant", "coiffeur"}, alphaKeywords)

	// One identity rotation per (keyword, source) pair.
	assert.Len(t, client.uas, 4)

	logs, err := store.ListImports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	for _, l := range logs {
		assert.Equal(t, directory.ImportCompleted, l.Status)
		assert.Contains(t, l.Message, "location=Paris")
	}
}

func TestRun_SourceFailureDoesNotStopTheOthers(t *testing.T) {
	registry := scrape.NewRegistry()
	registry.Register("bad", stubFactory(&stubSource{name: "bad", err: eris.New("blocked hard")}))
	registry.Register("good", stubFactory(&stubSource{name: "good", count: 5}))

	store := directory.NewMemory()
	o, _ := newOrchestrator(store, registry)

	summary, err := o.Run(context.Background(), []string{"restaurant"}, "Paris", registry.Names())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Imported)
	assert.Equal(t, 1, summary.Failed)

	logs, err := store.ListImports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	statuses := map[string]string{}
	for _, l := range logs {
		statuses[l.Source] = l.Status
		if l.Source == "bad" {
			assert.Contains(t, l.Message, "blocked hard")
		}
	}
	assert.Equal(t, directory.ImportError, statuses["bad"])
	assert.Equal(t, directory.ImportCompleted, statuses["good"])
}

func TestRun_UnknownSourceIsRecordedAndSkipped(t *testing.T) {
	registry := scrape.NewRegistry()
	registry.Register("known", stubFactory(&stubSource{name: "known", count: 1}))

	store := directory.NewMemory()
	o, _ := newOrchestrator(store, registry)

	summary, err := o.Run(context.Background(), []string{"restaurant"}, "Paris", []string{"mystery", "known"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Failed)

	logs, err := store.ListImports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	registry := scrape.NewRegistry()
	registry.Register("slow", stubFactory(&stubSource{name: "slow", err: context.Canceled}))

	store := directory.NewMemory()
	o, _ := newOrchestrator(store, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, []string{"restaurant"}, "Paris", []string{"slow"})
	require.Error(t, err)
}

type gridGeocoder struct {
	answers map[string]geocode.Result
}

func (g gridGeocoder) Geocode(ctx context.Context, query string) (*geocode.Result, error) {
	if res, ok := g.answers[query]; ok {
		return &res, nil
	}
	return nil, geocode.ErrNoResult
}

func TestGeocodeMissing_UpdatesResolvableAddresses(t *testing.T) {
	store := directory.NewMemory()
	ctx := context.Background()

	id, err := store.InsertCompany(ctx, &directory.Company{Name: "Café du Port", Source: "pagesjaunes", SourceID: "pj-1"})
	require.NoError(t, err)
	require.NoError(t, store.UpsertAddress(ctx, &directory.Address{
		CompanyID: id, Type: directory.AddressRegistered,
		Line: "2 quai des Chartrons", PostalCode: "33000", City: "Bordeaux", Country: "France",
	}))

	other, err := store.InsertCompany(ctx, &directory.Company{Name: "Introuvable", Source: "pagesjaunes", SourceID: "pj-2"})
	require.NoError(t, err)
	require.NoError(t, store.UpsertAddress(ctx, &directory.Address{
		CompanyID: other, Type: directory.AddressRegistered,
		Line: "9 rue Inconnue", PostalCode: "99999", City: "Nullepart", Country: "France",
	}))

	resolver := geocode.NewResolver(gridGeocoder{answers: map[string]geocode.Result{
		"2 quai des Chartrons, 33000 Bordeaux, France": {Latitude: 44.85, Longitude: -0.57},
	}})
	client := &stubClient{}
	o := New(store, client, scrape.NewRegistry(), resolver, testConfig()).WithSleeper(instantSleeper{})

	updated, err := o.GeocodeMissing(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	detail, err := store.GetCompanyDetail(ctx, id)
	require.NoError(t, err)
	require.Len(t, detail.Addresses, 1)
	require.NotNil(t, detail.Addresses[0].Latitude)
	assert.InDelta(t, 44.85, *detail.Addresses[0].Latitude, 1e-9)

	remaining, err := store.ListUngeocodedAddresses(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
