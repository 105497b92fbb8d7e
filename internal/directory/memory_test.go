package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func seedCompany(t *testing.T, s *MemoryStore, name, registration, source, sourceID string) int64 {
	t.Helper()
	id, err := s.InsertCompany(context.Background(), &Company{
		Name:         name,
		Registration: registration,
		Source:       source,
		SourceID:     sourceID,
	})
	require.NoError(t, err)
	return id
}

func TestMemoryStore_FindCompanyByName_IgnoresAccentsAndCase(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id := seedCompany(t, s, "Café du Centre", "", "pagesjaunes", "pj-1")

	got, err := s.FindCompanyIDByName(ctx, "CAFE  DU  CENTRE", "pagesjaunes")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = s.FindCompanyIDByName(ctx, "Autre Société", "pagesjaunes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FindCompanyByName_ScopedToSource(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	seedCompany(t, s, "Café du Centre", "", "pple", "p-1")

	// The same name on another source is not a duplicate.
	_, err := s.FindCompanyIDByName(ctx, "Café du Centre", "pagesjaunes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpsertAddress_UpdatesInPlace(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := seedCompany(t, s, "Test SARL", "", "pple", "p-1")

	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: id, Type: AddressRegistered,
		Line: "1 rue A", PostalCode: "75001", City: "Paris", Country: "France",
	}))
	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: id, Type: AddressRegistered,
		Line: "1 bis rue A", PostalCode: "75001", City: "Paris", Country: "France",
		Latitude: ptr(48.86), Longitude: ptr(2.33),
	}))

	d, err := s.GetCompanyDetail(ctx, id)
	require.NoError(t, err)
	require.Len(t, d.Addresses, 1)
	a := d.Addresses[0]
	// Line and coordinates follow the latest import.
	assert.Equal(t, "1 bis rue A", a.Line)
	require.NotNil(t, a.Latitude)
	assert.InDelta(t, 48.86, *a.Latitude, 1e-9)

	// A different city under the same type is a distinct address.
	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: id, Type: AddressRegistered,
		Line: "2 rue B", PostalCode: "69001", City: "Lyon", Country: "France",
	}))
	d, err = s.GetCompanyDetail(ctx, id)
	require.NoError(t, err)
	assert.Len(t, d.Addresses, 2)
}

func TestMemoryStore_UpsertAddress_KeepsCoordsWhenNewImportHasNone(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := seedCompany(t, s, "Geo SARL", "", "datagouv", "d-1")

	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: id, Type: AddressRegistered,
		Line: "1 rue A", City: "Paris", Latitude: ptr(48.85), Longitude: ptr(2.35),
	}))
	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: id, Type: AddressRegistered,
		Line: "1 rue A bis", City: "Paris",
	}))

	d, err := s.GetCompanyDetail(ctx, id)
	require.NoError(t, err)
	require.Len(t, d.Addresses, 1)
	require.NotNil(t, d.Addresses[0].Latitude)
	assert.InDelta(t, 48.85, *d.Addresses[0].Latitude, 1e-9)
}

func TestMemoryStore_SatelliteInsertsAreIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := seedCompany(t, s, "Idem SA", "", "pagesjaunes", "pj-2")

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertContactIfAbsent(ctx, &Contact{
			CompanyID: id, Type: ContactPhone, Value: "0142000000",
		}))
		require.NoError(t, s.InsertWebsiteIfAbsent(ctx, &Website{
			CompanyID: id, URL: "https://idem.example", Type: WebsiteOfficial,
		}))
		require.NoError(t, s.InsertDirectorIfAbsent(ctx, &Director{
			CompanyID: id, LastName: "Durand", FirstName: "Marie",
		}))
	}

	d, err := s.GetCompanyDetail(ctx, id)
	require.NoError(t, err)
	assert.Len(t, d.Contacts, 1)
	assert.Len(t, d.Websites, 1)
	assert.Len(t, d.Directors, 1)
}

func TestMemoryStore_GetOrCreateActivity_Precedence(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	// Created without a code, matched later by folded label, code backfilled.
	first, err := s.GetOrCreateActivity(ctx, "Boulangerie et pâtisserie", "")
	require.NoError(t, err)

	second, err := s.GetOrCreateActivity(ctx, "boulangerie et patisserie", "10.71C")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Code now resolves directly, even under a different label.
	third, err := s.GetOrCreateActivity(ctx, "Fabrication de pain", "10.71C")
	require.NoError(t, err)
	assert.Equal(t, first, third)

	// An existing code is never overwritten.
	a, err := s.GetActivity(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "10.71C", a.Code)

	acts, err := s.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func TestMemoryStore_GetOrCreateActivity_SplitsLabelDashCode(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id, err := s.GetOrCreateActivity(ctx, "Restaurant - 56.10", "")
	require.NoError(t, err)

	a, err := s.GetActivity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Restaurant", a.Label)
	assert.Equal(t, "56.10", a.Code)

	// Plain label resolves to the same row; the split code is kept.
	again, err := s.GetOrCreateActivity(ctx, "Restaurant", "")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	a, err = s.GetActivity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "56.10", a.Code)
}

func TestMemoryStore_ImportLogLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id, err := s.StartImport(ctx, "pagesjaunes", "keyword=restaurant location=Paris")
	require.NoError(t, err)
	require.NoError(t, s.CompleteImport(ctx, id, 12))

	id2, err := s.StartImport(ctx, "pple", "keyword=restaurant location=Paris")
	require.NoError(t, err)
	require.NoError(t, s.FailImport(ctx, id2, "blocked after 3 failures"))

	logs, err := s.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	byID := map[int64]ImportLog{}
	for _, l := range logs {
		byID[l.ID] = l
	}
	assert.Equal(t, ImportCompleted, byID[id].Status)
	assert.Equal(t, 12, byID[id].Companies)
	require.NotNil(t, byID[id].CompletedAt)
	assert.Equal(t, ImportError, byID[id2].Status)
	assert.Equal(t, "blocked after 3 failures", byID[id2].Message)
}

func TestMemoryStore_ListNearby_OrdersByDistance(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	near := seedCompany(t, s, "Proche", "", "datagouv", "d-10")
	far := seedCompany(t, s, "Loin", "", "datagouv", "d-11")
	noCoords := seedCompany(t, s, "Sans Coordonnées", "", "datagouv", "d-12")

	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: near, Type: AddressRegistered, City: "Paris",
		Latitude: ptr(48.8570), Longitude: ptr(2.3525),
	}))
	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: far, Type: AddressRegistered, City: "Versailles",
		Latitude: ptr(48.8049), Longitude: ptr(2.1204),
	}))
	require.NoError(t, s.UpsertAddress(ctx, &Address{
		CompanyID: noCoords, Type: AddressRegistered, City: "Paris",
	}))

	out, err := s.ListNearby(ctx, 48.8566, 2.3522, 25, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Proche", out[0].Name)
	assert.Equal(t, "Loin", out[1].Name)
	assert.Less(t, out[0].DistanceKM, out[1].DistanceKM)

	// Tight radius excludes Versailles.
	out, err = s.ListNearby(ctx, 48.8566, 2.3522, 2, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Proche", out[0].Name)
}

func TestMemoryStore_ListCompanies_FiltersAndPaginates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i, name := range []string{"Alpha", "Bravo", "Charlie"} {
		id := seedCompany(t, s, name, "", "pagesjaunes", string(rune('a'+i)))
		city := "Paris"
		if name == "Charlie" {
			city = "Lyon"
		}
		require.NoError(t, s.UpsertAddress(ctx, &Address{
			CompanyID: id, Type: AddressRegistered, City: city, PostalCode: "75001",
		}))
	}

	out, total, err := s.ListCompanies(ctx, CompanyFilter{City: "paris", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, out, 1)
	assert.Equal(t, "Alpha", out[0].Name)

	out, _, err = s.ListCompanies(ctx, CompanyFilter{City: "paris", Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Bravo", out[0].Name)
}

func TestMemoryStore_SearchCompanies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	seedCompany(t, s, "Boulangerie Dupont", "512345678", "pagesjaunes", "pj-5")
	seedCompany(t, s, "Garage Michel", "", "pple", "p-5")

	out, err := s.SearchCompanies(ctx, "dupont", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Boulangerie Dupont", out[0].Name)

	out, err = s.SearchCompanies(ctx, "512345678", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "512345678", out[0].Registration)
}
