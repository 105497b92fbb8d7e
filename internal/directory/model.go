// Package directory defines the normalized company graph produced by the
// importer and read by the API: companies with their addresses, contacts,
// websites, activities and directors, plus the per-run import log.
package directory

import "time"

// Address types.
const (
	AddressRegistered    = "siege"         // registered office, authoritative for map display
	AddressEstablishment = "etablissement" // secondary establishment
)

// Contact types.
const (
	ContactPhone  = "telephone"
	ContactEmail  = "email"
	ContactFax    = "fax"
	ContactMobile = "mobile"
)

// Website types.
const (
	WebsiteOfficial  = "officiel"
	WebsiteECommerce = "ecommerce"
	WebsiteBlog      = "blog"
	WebsiteSocial    = "social"
)

// Import log statuses.
const (
	ImportRunning   = "running"
	ImportCompleted = "completed"
	ImportError     = "error"
)

// Company is one business record discovered by a source. Within a source it
// is identified by (Source, SourceID); the registration number, when known,
// is unique across all sources.
type Company struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	LegalName       string     `json:"legal_name,omitempty" db:"legal_name"`
	Registration    string     `json:"registration,omitempty" db:"registration"` // SIRET/SIREN
	LegalForm       string     `json:"legal_form,omitempty" db:"legal_form"`
	CreatedOn       *time.Time `json:"created_on,omitempty" db:"created_on"`
	Capital         *float64   `json:"capital,omitempty" db:"capital"`
	ActivityCode    string     `json:"activity_code,omitempty" db:"activity_code"` // NAF
	EmployeeBracket string     `json:"employee_bracket,omitempty" db:"employee_bracket"`
	Source          string     `json:"source" db:"source"`
	SourceID        string     `json:"source_id" db:"source_id"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Address is a physical address attached to a company.
type Address struct {
	ID         int64    `json:"id" db:"id"`
	CompanyID  int64    `json:"company_id" db:"company_id"`
	Type       string   `json:"type" db:"addr_type"`
	Line       string   `json:"line" db:"line"`
	Complement string   `json:"complement,omitempty" db:"complement"`
	PostalCode string   `json:"postal_code" db:"postal_code"`
	City       string   `json:"city" db:"city"`
	Country    string   `json:"country" db:"country"`
	Latitude   *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64 `json:"longitude,omitempty" db:"longitude"`
}

// Contact is a phone/email/fax/mobile entry for a company.
type Contact struct {
	ID          int64  `json:"id" db:"id"`
	CompanyID   int64  `json:"company_id" db:"company_id"`
	Type        string `json:"type" db:"contact_type"`
	Value       string `json:"value" db:"value"`
	Description string `json:"description,omitempty" db:"description"`
}

// Website is a URL attached to a company.
type Website struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	URL       string `json:"url" db:"url"`
	Type      string `json:"type" db:"site_type"`
}

// Activity is a business-category classification, optionally carrying a
// standard (NAF) code.
type Activity struct {
	ID    int64  `json:"id" db:"id"`
	Label string `json:"label" db:"label"`
	Code  string `json:"code,omitempty" db:"code"`
}

// Director is a company officer.
type Director struct {
	ID        int64      `json:"id" db:"id"`
	CompanyID int64      `json:"company_id" db:"company_id"`
	LastName  string     `json:"last_name" db:"last_name"`
	FirstName string     `json:"first_name,omitempty" db:"first_name"`
	Role      string     `json:"role,omitempty" db:"role"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	RoleStart *time.Time `json:"role_start,omitempty" db:"role_start"`
}

// ImportLog is one row per (source, run).
type ImportLog struct {
	ID          int64      `json:"id" db:"id"`
	Source      string     `json:"source" db:"source"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Status      string     `json:"status" db:"status"`
	Message     string     `json:"message,omitempty" db:"message"`
	Companies   int        `json:"companies_imported" db:"companies_imported"`
}

// CompanySummary is the list/search row: the company plus its registered
// office address, denormalized for the API.
type CompanySummary struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	LegalName    string   `json:"legal_name,omitempty"`
	Registration string   `json:"registration,omitempty"`
	Line         string   `json:"line,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	City         string   `json:"city,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// NearbyCompany is a geo-radius search row.
type NearbyCompany struct {
	CompanySummary
	DistanceKM float64 `json:"distance_km"`
}

// CompanyDetail is the full entity graph for one company.
type CompanyDetail struct {
	Company
	Addresses  []Address  `json:"addresses"`
	Contacts   []Contact  `json:"contacts"`
	Websites   []Website  `json:"websites"`
	Activities []Activity `json:"activities"`
	Directors  []Director `json:"directors"`
}

// CompanyFilter selects companies for the list endpoint.
type CompanyFilter struct {
	Activity   string // substring match on activity label
	City       string // substring match
	PostalCode string // prefix match
	Page       int    // 1-based
	Limit      int
}
