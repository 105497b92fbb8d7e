package scrape

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

const dgBase = "https://dg.test"

const dgDepartments = `<html><body><div class="fr-container body-wrapper">
<a href="/departements/75-paris/index.html">Paris</a>
<a href="/departements/69-rhone/index.html">Rhône</a>
</div></body></html>`

const dgParisIndex = `<html><body>
<a href="/departements/75-paris/restaurants/1.html">Restaurants</a>
</body></html>`

const dgRestaurantsPage = `<html><body>
<a href="/entreprise/cafe-de-flore-123456789">Café de Flore</a>
<a href="/entreprise/bistro-du-coin-987654321">Bistro du Coin</a>
</body></html>`

const dgFloreDetail = `<html><body>
<h1>Café de Flore</h1>
<div class="company-siret">SIRET : 12345678900012</div>
<div class="company-legal-form">Forme juridique : SARL</div>
<div class="company-creation-date">Date de création : 15/03/1990</div>
<table>
<tr><td>Adresse postale</td><td>172 boulevard Saint-Germain 75006 Paris</td></tr>
<tr><td>Activité principale</td><td>Restauration traditionnelle</td></tr>
</table>
</body></html>`

const dgBistroDetail = `<html><body>
<h1>Bistro du Coin</h1>
</body></html>`

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(ctx context.Context, query string) (*geocode.Result, error) {
	return &geocode.Result{Latitude: 48.85, Longitude: 2.35}, nil
}

func dgConfig() config.SourceConfig {
	return config.SourceConfig{
		BaseURL:     dgBase,
		MaxPages:    10,
		MaxFailures: 3,
		Geocode:     true,
	}
}

func dgHandler(pages map[string]string) func(rawURL string) (*fetch.Page, error) {
	return func(rawURL string) (*fetch.Page, error) {
		for suffix, body := range pages {
			if strings.HasSuffix(rawURL, suffix) {
				return htmlPage(rawURL, body), nil
			}
		}
		return &fetch.Page{URL: rawURL, StatusCode: 404}, nil
	}
}

func dgPages() map[string]string {
	return map[string]string{
		"/departements/":                       dgDepartments,
		"/departements/75-paris/index.html":    dgParisIndex,
		"/75-paris/restaurants/1.html":         dgRestaurantsPage,
		"/entreprise/cafe-de-flore-123456789":  dgFloreDetail,
		"/entreprise/bistro-du-coin-987654321": dgBistroDetail,
	}
}

func TestDataGouv_DrillsDownAndImports(t *testing.T) {
	client := &fakeClient{handler: dgHandler(dgPages())}
	deps, store, _ := testDeps(client, dgConfig())
	deps.Resolver = geocode.NewResolver(fakeGeocoder{})

	count, err := NewDataGouv(deps).Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	id, err := store.FindCompanyIDByRegistration(context.Background(), "12345678900012")
	require.NoError(t, err)
	detail, err := store.GetCompanyDetail(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "Café de Flore", detail.Name)
	assert.Equal(t, "SARL", detail.LegalForm)
	assert.Equal(t, "datagouv", detail.Source)
	assert.Equal(t, "123456789", detail.SourceID)
	require.NotNil(t, detail.CreatedOn)
	assert.Equal(t, time.Date(1990, time.March, 15, 0, 0, 0, 0, time.UTC), *detail.CreatedOn)

	require.Len(t, detail.Addresses, 1)
	addr := detail.Addresses[0]
	assert.Equal(t, "172 boulevard Saint-Germain", addr.Line)
	assert.Equal(t, "75006", addr.PostalCode)
	assert.Equal(t, "Paris", addr.City)
	require.NotNil(t, addr.Latitude)
	assert.InDelta(t, 48.85, *addr.Latitude, 1e-9)

	require.Len(t, detail.Activities, 1)
	assert.Equal(t, "Restauration traditionnelle", detail.Activities[0].Label)
	assert.Equal(t, "restaurants", detail.Activities[0].Code)
}

func TestDataGouv_SkipsKnownRegistration(t *testing.T) {
	client := &fakeClient{handler: dgHandler(dgPages())}
	deps, store, _ := testDeps(client, dgConfig())

	_, err := store.InsertCompany(context.Background(), &directory.Company{
		Name:         "Café de Flore",
		Registration: "123456789",
		Source:       "datagouv",
		SourceID:     "123456789",
	})
	require.NoError(t, err)

	count, err := NewDataGouv(deps).Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, client.requested("cafe-de-flore"))
}

func TestDataGouv_ReimportInsertsNothing(t *testing.T) {
	client := &fakeClient{handler: dgHandler(dgPages())}
	deps, _, _ := testDeps(client, dgConfig())
	src := NewDataGouv(deps)

	first, err := src.Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := src.Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestDataGouv_NumericKeywordSelectsOneDepartment(t *testing.T) {
	client := &fakeClient{handler: dgHandler(dgPages())}
	deps, _, _ := testDeps(client, dgConfig())

	count, err := NewDataGouv(deps).Import(context.Background(), "69", "")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, client.requested("69-rhone/index.html"))
	assert.Zero(t, client.requested("75-paris"))
}

func TestDataGouv_FallsBackToParisWithoutDepartmentLinks(t *testing.T) {
	pages := dgPages()
	pages["/departements/"] = emptyListing
	client := &fakeClient{handler: dgHandler(pages)}
	deps, _, _ := testDeps(client, dgConfig())

	count, err := NewDataGouv(deps).Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, client.requested("75-paris/index.html"))
}

func TestDataGouv_FollowsPaginationLinks(t *testing.T) {
	pages := dgPages()
	pages["/75-paris/restaurants/1.html"] = `<html><body>
<a href="/entreprise/cafe-de-flore-123456789">Café de Flore</a>
<div class="pagination"><a href="/departements/75-paris/restaurants/2.html">2</a></div>
</body></html>`
	pages["/75-paris/restaurants/2.html"] = dgRestaurantsPage
	client := &fakeClient{handler: dgHandler(pages)}
	deps, _, _ := testDeps(client, dgConfig())

	count, err := NewDataGouv(deps).Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, client.requested("restaurants/2.html"))
	assert.Zero(t, client.requested("restaurants/3.html"))
}

func TestDataGouv_MissingNameSkipsDetailPage(t *testing.T) {
	pages := dgPages()
	pages["/entreprise/bistro-du-coin-987654321"] = "<html><body><p>page en construction</p></body></html>"
	client := &fakeClient{handler: dgHandler(pages)}
	deps, _, _ := testDeps(client, dgConfig())

	count, err := NewDataGouv(deps).Import(context.Background(), "restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
