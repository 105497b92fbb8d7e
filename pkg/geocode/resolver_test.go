package geocode

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeocoder answers from a fixed query map and records what it was asked.
type fakeGeocoder struct {
	answers map[string]*Result
	err     error
	asked   []string
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	f.asked = append(f.asked, query)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.answers[query]; ok {
		return res, nil
	}
	return nil, ErrNoResult
}

func TestResolver_FullAddressResolvesFirst(t *testing.T) {
	fg := &fakeGeocoder{answers: map[string]*Result{
		"12 rue de la Paix, 75002 Paris, France": {Latitude: 48.86, Longitude: 2.33},
	}}
	r := NewResolver(fg)

	res, err := r.Resolve(context.Background(), AddressQuery{
		Line: "12 rue de la Paix", PostalCode: "75002", City: "Paris",
	})
	require.NoError(t, err)
	assert.InDelta(t, 48.86, res.Latitude, 1e-9)
	assert.Equal(t, []string{"12 rue de la Paix, 75002 Paris, France"}, fg.asked)
}

func TestResolver_FallsBackWithoutHouseNumber(t *testing.T) {
	fg := &fakeGeocoder{answers: map[string]*Result{
		"rue de la Paix, 75002 Paris, France": {Latitude: 48.86, Longitude: 2.33},
	}}
	r := NewResolver(fg)

	res, err := r.Resolve(context.Background(), AddressQuery{
		Line: "12bis rue de la Paix", PostalCode: "75002", City: "Paris",
	})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Len(t, fg.asked, 2)
}

func TestResolver_FallsBackToPostalCodeAndCity(t *testing.T) {
	fg := &fakeGeocoder{answers: map[string]*Result{
		"75002 Paris, France": {Latitude: 48.868, Longitude: 2.341},
	}}
	r := NewResolver(fg)

	res, err := r.Resolve(context.Background(), AddressQuery{
		Line: "Centre Commercial Inconnu 99", PostalCode: "75002", City: "Paris",
	})
	require.NoError(t, err)
	assert.InDelta(t, 48.868, res.Latitude, 1e-9)
	assert.Len(t, fg.asked, 3)
}

func TestResolver_AllTiersEmpty(t *testing.T) {
	fg := &fakeGeocoder{}
	r := NewResolver(fg)

	_, err := r.Resolve(context.Background(), AddressQuery{
		Line: "1 rue Perdue", PostalCode: "00000", City: "Nullepart",
	})
	require.ErrorIs(t, err, ErrNoResult)
	assert.Len(t, fg.asked, 3)
}

func TestResolver_ProviderErrorIsAMissForThatTier(t *testing.T) {
	fg := &fakeGeocoder{err: eris.New("network down")}
	r := NewResolver(fg)

	_, err := r.Resolve(context.Background(), AddressQuery{
		Line: "1 rue A", PostalCode: "75001", City: "Paris",
	})
	require.ErrorIs(t, err, ErrNoResult)
	assert.Len(t, fg.asked, 3)
}

func TestResolver_CancelledContextAborts(t *testing.T) {
	fg := &fakeGeocoder{}
	r := NewResolver(fg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, AddressQuery{
		Line: "1 rue A", PostalCode: "75001", City: "Paris",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResult)
	assert.Empty(t, fg.asked)
}

func TestResolver_EmptyAddress(t *testing.T) {
	fg := &fakeGeocoder{}
	r := NewResolver(fg)

	_, err := r.Resolve(context.Background(), AddressQuery{})
	require.ErrorIs(t, err, ErrNoResult)
	assert.Empty(t, fg.asked)
}
