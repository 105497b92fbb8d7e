package directory

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = eris.New("directory: not found")

// Store is the persistence contract shared by the importer, the geocoding
// pass and the read API. Three implementations exist: Postgres (pgx),
// SQLite (modernc) and an in-memory store used in tests and for quick
// local runs.
//
// Write methods are idempotent at the level the importer needs: re-running
// an import against an unchanged source must not create duplicate rows.
type Store interface {
	// Company dedup + insert. Find methods return ErrNotFound when absent.
	// Name matching is scoped to one source so the same business listed
	// on two sources yields two rows.
	FindCompanyIDByRegistration(ctx context.Context, registration string) (int64, error)
	FindCompanyIDByName(ctx context.Context, name, source string) (int64, error)
	FindCompanyIDBySource(ctx context.Context, source, sourceID string) (int64, error)
	InsertCompany(ctx context.Context, c *Company) (int64, error)

	// UpsertAddress inserts the address if the company has no address
	// with the same type, postal code and city, otherwise refreshes
	// line, complement and coordinates in place.
	UpsertAddress(ctx context.Context, a *Address) error

	// Insert-if-absent satellites. Absent means no row with the same
	// (company, type, value) resp. (company, url) resp. (company, last
	// name, first name, role).
	InsertContactIfAbsent(ctx context.Context, c *Contact) error
	InsertWebsiteIfAbsent(ctx context.Context, w *Website) error
	InsertDirectorIfAbsent(ctx context.Context, d *Director) error

	// GetOrCreateActivity resolves an activity by code first, then by
	// folded label. A label of the form "Label - CODE" with no explicit
	// code is split on the first " - ". When a code-less row is matched
	// by label and a code is now known, the code is backfilled. An
	// existing non-empty code is never overwritten.
	GetOrCreateActivity(ctx context.Context, label, code string) (int64, error)
	AssociateActivity(ctx context.Context, companyID, activityID int64) error

	// Import log lifecycle. The message records what the run was asked
	// to do (keyword, location) until a failure overwrites it.
	StartImport(ctx context.Context, source, message string) (int64, error)
	CompleteImport(ctx context.Context, id int64, companies int) error
	FailImport(ctx context.Context, id int64, message string) error
	ListImports(ctx context.Context, limit int) ([]ImportLog, error)

	// Geocoding support.
	ListUngeocodedAddresses(ctx context.Context, limit int) ([]Address, error)
	UpdateAddressCoords(ctx context.Context, addressID int64, lat, lng float64) error

	// Read API.
	ListCompanies(ctx context.Context, f CompanyFilter) ([]CompanySummary, int, error)
	GetCompanyDetail(ctx context.Context, id int64) (*CompanyDetail, error)
	SearchCompanies(ctx context.Context, query string, limit int) ([]CompanySummary, error)
	ListNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]NearbyCompany, error)
	ListActivities(ctx context.Context) ([]Activity, error)
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	ListCompaniesByActivity(ctx context.Context, activityID int64, page, limit int) ([]CompanySummary, int, error)

	Migrate(ctx context.Context) error
	Close() error
}
