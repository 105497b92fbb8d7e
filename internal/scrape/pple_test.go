package scrape

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

const pplePageOne = `<html><body>
<div class="search-result-item" data-company-id="pple-9" data-lat="48.8566" data-lng="2.3522">
  <span class="company-name">Garage Lemoine</span>
  <span class="company-address">4 avenue de la République, 75011 Paris</span>
  <span class="company-phone">01 43 55 00 00</span>
  <span class="company-email">contact@garage-lemoine.fr</span>
  <a class="company-website" href="https://garage-lemoine.fr">site</a>
  <span class="company-categories">Garage automobile, Carrosserie</span>
</div>
</body></html>`

func ppleConfig() config.SourceConfig {
	return config.SourceConfig{
		BaseURL:     "https://pple.test/recherche",
		MaxPages:    5,
		MaxFailures: 3,
	}
}

func TestPple_ImportsListingWithCoordinates(t *testing.T) {
	client := &fakeClient{handler: func(rawURL string) (*fetch.Page, error) {
		if strings.Contains(rawURL, "page=1") {
			return htmlPage(rawURL, pplePageOne), nil
		}
		return htmlPage(rawURL, emptyListing), nil
	}}
	deps, store, _ := testDeps(client, ppleConfig())

	count, err := NewPple(deps).Import(context.Background(), "garage", "Paris")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	id, err := store.FindCompanyIDByName(context.Background(), "Garage Lemoine", "pple")
	require.NoError(t, err)
	detail, err := store.GetCompanyDetail(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, detail.Addresses, 1)
	addr := detail.Addresses[0]
	assert.Equal(t, "4 avenue de la République", addr.Line)
	assert.Equal(t, "75011", addr.PostalCode)
	assert.Equal(t, "Paris", addr.City)
	require.NotNil(t, addr.Latitude)
	require.NotNil(t, addr.Longitude)
	assert.InDelta(t, 48.8566, *addr.Latitude, 1e-9)
	assert.InDelta(t, 2.3522, *addr.Longitude, 1e-9)

	require.Len(t, detail.Contacts, 2)
	values := []string{detail.Contacts[0].Value, detail.Contacts[1].Value}
	assert.Contains(t, values, "0143550000")
	assert.Contains(t, values, "contact@garage-lemoine.fr")
	assert.Len(t, detail.Websites, 1)
	assert.Len(t, detail.Activities, 2)
}

func TestPple_BadCoordinatesAreDropped(t *testing.T) {
	page := strings.ReplaceAll(pplePageOne, `data-lat="48.8566"`, `data-lat="north"`)
	client := &fakeClient{handler: func(rawURL string) (*fetch.Page, error) {
		if strings.Contains(rawURL, "page=1") {
			return htmlPage(rawURL, page), nil
		}
		return htmlPage(rawURL, emptyListing), nil
	}}
	deps, store, _ := testDeps(client, ppleConfig())

	_, err := NewPple(deps).Import(context.Background(), "garage", "Paris")
	require.NoError(t, err)

	id, err := store.FindCompanyIDByName(context.Background(), "Garage Lemoine", "pple")
	require.NoError(t, err)
	detail, err := store.GetCompanyDetail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, detail.Addresses, 1)
	assert.Nil(t, detail.Addresses[0].Latitude)
	assert.Nil(t, detail.Addresses[0].Longitude)
}

func TestPple_GeocodesCardsWithoutCoordinates(t *testing.T) {
	page := strings.ReplaceAll(pplePageOne, `data-lat="48.8566" data-lng="2.3522"`, "")
	client := &fakeClient{handler: func(rawURL string) (*fetch.Page, error) {
		if strings.Contains(rawURL, "page=1") {
			return htmlPage(rawURL, page), nil
		}
		return htmlPage(rawURL, emptyListing), nil
	}}
	cfg := ppleConfig()
	cfg.Geocode = true
	deps, store, _ := testDeps(client, cfg)
	deps.Resolver = geocode.NewResolver(fakeGeocoder{})

	_, err := NewPple(deps).Import(context.Background(), "garage", "Paris")
	require.NoError(t, err)

	id, err := store.FindCompanyIDByName(context.Background(), "Garage Lemoine", "pple")
	require.NoError(t, err)
	detail, err := store.GetCompanyDetail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, detail.Addresses, 1)
	require.NotNil(t, detail.Addresses[0].Latitude)
	assert.InDelta(t, 48.85, *detail.Addresses[0].Latitude, 1e-9)
	assert.InDelta(t, 2.35, *detail.Addresses[0].Longitude, 1e-9)
}

func TestPple_CardCoordinatesWinOverGeocoding(t *testing.T) {
	client := &fakeClient{handler: func(rawURL string) (*fetch.Page, error) {
		if strings.Contains(rawURL, "page=1") {
			return htmlPage(rawURL, pplePageOne), nil
		}
		return htmlPage(rawURL, emptyListing), nil
	}}
	cfg := ppleConfig()
	cfg.Geocode = true
	deps, store, _ := testDeps(client, cfg)
	deps.Resolver = geocode.NewResolver(fakeGeocoder{})

	_, err := NewPple(deps).Import(context.Background(), "garage", "Paris")
	require.NoError(t, err)

	id, err := store.FindCompanyIDByName(context.Background(), "Garage Lemoine", "pple")
	require.NoError(t, err)
	detail, err := store.GetCompanyDetail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, detail.Addresses, 1)
	require.NotNil(t, detail.Addresses[0].Latitude)
	assert.InDelta(t, 48.8566, *detail.Addresses[0].Latitude, 1e-9)
}

func TestPple_BlankNameSkipsTheCard(t *testing.T) {
	page := strings.ReplaceAll(pplePageOne, "Garage Lemoine", "  ")
	client := &fakeClient{handler: func(rawURL string) (*fetch.Page, error) {
		if strings.Contains(rawURL, "page=1") {
			return htmlPage(rawURL, page), nil
		}
		return htmlPage(rawURL, emptyListing), nil
	}}
	deps, store, _ := testDeps(client, ppleConfig())

	count, err := NewPple(deps).Import(context.Background(), "garage", "Paris")
	require.NoError(t, err)
	assert.Zero(t, count)
	summaries, err := store.SearchCompanies(context.Background(), "lemoine", 10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
