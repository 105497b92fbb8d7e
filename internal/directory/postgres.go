package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sirene-labs/annuaire-cli/internal/db"
	"github.com/sirene-labs/annuaire-cli/internal/normalize"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	name_key         TEXT NOT NULL,
	legal_name       TEXT NOT NULL DEFAULT '',
	registration     TEXT NOT NULL DEFAULT '',
	legal_form       TEXT NOT NULL DEFAULT '',
	created_on       DATE,
	capital          DOUBLE PRECISION,
	activity_code    TEXT NOT NULL DEFAULT '',
	employee_bracket TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, source_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_registration
	ON companies(registration) WHERE registration <> '';
CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key, source);

CREATE TABLE IF NOT EXISTS addresses (
	id          BIGSERIAL PRIMARY KEY,
	company_id  BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	addr_type   TEXT NOT NULL DEFAULT 'siege',
	line        TEXT NOT NULL DEFAULT '',
	complement  TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT 'France',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	UNIQUE (company_id, addr_type, postal_code, city)
);

CREATE INDEX IF NOT EXISTS idx_addresses_postal_code ON addresses(postal_code);
CREATE INDEX IF NOT EXISTS idx_addresses_coords ON addresses(latitude, longitude);

CREATE TABLE IF NOT EXISTS contacts (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	contact_type TEXT NOT NULL,
	value        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	UNIQUE (company_id, contact_type, value)
);

CREATE TABLE IF NOT EXISTS websites (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	site_type  TEXT NOT NULL DEFAULT 'officiel',
	UNIQUE (company_id, url)
);

CREATE TABLE IF NOT EXISTS activities (
	id        BIGSERIAL PRIMARY KEY,
	label     TEXT NOT NULL,
	label_key TEXT NOT NULL UNIQUE,
	code      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_code
	ON activities(code) WHERE code <> '';

CREATE TABLE IF NOT EXISTS company_activities (
	company_id  BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	PRIMARY KEY (company_id, activity_id)
);

CREATE TABLE IF NOT EXISTS directors (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	last_name  TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	birth_date DATE,
	role_start DATE,
	UNIQUE (company_id, last_name, first_name, role)
);

CREATE TABLE IF NOT EXISTS import_logs (
	id                 BIGSERIAL PRIMARY KEY,
	source             TEXT NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at       TIMESTAMPTZ,
	status             TEXT NOT NULL DEFAULT 'running',
	message            TEXT NOT NULL DEFAULT '',
	companies_imported INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_import_logs_source ON import_logs(source, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindCompanyIDByRegistration(ctx context.Context, registration string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM companies WHERE registration = $1`,
		registration,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, eris.Wrap(err, "postgres: find company by registration")
	}
	return id, nil
}

func (s *PostgresStore) FindCompanyIDByName(ctx context.Context, name, source string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM companies WHERE name_key = $1 AND source = $2 ORDER BY id LIMIT 1`,
		normalize.Key(name), source,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, eris.Wrap(err, "postgres: find company by name")
	}
	return id, nil
}

func (s *PostgresStore) FindCompanyIDBySource(ctx context.Context, source, sourceID string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM companies WHERE source = $1 AND source_id = $2`,
		source, sourceID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, eris.Wrap(err, "postgres: find company by source")
	}
	return id, nil
}

func (s *PostgresStore) InsertCompany(ctx context.Context, c *Company) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies
		 (name, name_key, legal_name, registration, legal_form, created_on, capital,
		  activity_code, employee_bracket, source, source_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		 RETURNING id`,
		c.Name, normalize.Key(c.Name), c.LegalName, c.Registration, c.LegalForm,
		c.CreatedOn, c.Capital, c.ActivityCode, c.EmployeeBracket, c.Source, c.SourceID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert company %s", c.Name)
	}
	c.ID = id
	return id, nil
}

func (s *PostgresStore) UpsertAddress(ctx context.Context, a *Address) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO addresses
		 (company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (company_id, addr_type, postal_code, city) DO UPDATE SET
		   line = EXCLUDED.line,
		   complement = EXCLUDED.complement,
		   latitude = COALESCE(EXCLUDED.latitude, addresses.latitude),
		   longitude = COALESCE(EXCLUDED.longitude, addresses.longitude)`,
		a.CompanyID, a.Type, a.Line, a.Complement, a.PostalCode, a.City, a.Country,
		a.Latitude, a.Longitude,
	)
	return eris.Wrapf(err, "postgres: upsert address for company %d", a.CompanyID)
}

func (s *PostgresStore) InsertContactIfAbsent(ctx context.Context, c *Contact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (company_id, contact_type, value, description)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_id, contact_type, value) DO NOTHING`,
		c.CompanyID, c.Type, c.Value, c.Description,
	)
	return eris.Wrapf(err, "postgres: insert contact for company %d", c.CompanyID)
}

func (s *PostgresStore) InsertWebsiteIfAbsent(ctx context.Context, w *Website) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO websites (company_id, url, site_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (company_id, url) DO NOTHING`,
		w.CompanyID, w.URL, w.Type,
	)
	return eris.Wrapf(err, "postgres: insert website for company %d", w.CompanyID)
}

func (s *PostgresStore) InsertDirectorIfAbsent(ctx context.Context, d *Director) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO directors (company_id, last_name, first_name, role, birth_date, role_start)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (company_id, last_name, first_name, role) DO NOTHING`,
		d.CompanyID, d.LastName, d.FirstName, d.Role, d.BirthDate, d.RoleStart,
	)
	return eris.Wrapf(err, "postgres: insert director for company %d", d.CompanyID)
}

func (s *PostgresStore) GetOrCreateActivity(ctx context.Context, label, code string) (int64, error) {
	label, code = splitActivityLabel(label, code)
	if code != "" {
		var id int64
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM activities WHERE code = $1`,
			code,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrap(err, "postgres: find activity by code")
		}
	}

	key := normalize.Key(label)
	var id int64
	var existingCode string
	err := s.pool.QueryRow(ctx,
		`SELECT id, code FROM activities WHERE label_key = $1`,
		key,
	).Scan(&id, &existingCode)
	switch {
	case err == nil:
		// Backfill the code only when the existing row has none.
		if code != "" && existingCode == "" {
			if _, err := s.pool.Exec(ctx,
				`UPDATE activities SET code = $1 WHERE id = $2 AND code = ''`,
				code, id,
			); err != nil {
				return 0, eris.Wrap(err, "postgres: backfill activity code")
			}
		}
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		err := s.pool.QueryRow(ctx,
			`INSERT INTO activities (label, label_key, code) VALUES ($1, $2, $3) RETURNING id`,
			label, key, code,
		).Scan(&id)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert activity %s", label)
		}
		return id, nil
	default:
		return 0, eris.Wrap(err, "postgres: find activity by label")
	}
}

func (s *PostgresStore) AssociateActivity(ctx context.Context, companyID, activityID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO company_activities (company_id, activity_id)
		 VALUES ($1, $2)
		 ON CONFLICT (company_id, activity_id) DO NOTHING`,
		companyID, activityID,
	)
	return eris.Wrapf(err, "postgres: associate activity %d with company %d", activityID, companyID)
}

func (s *PostgresStore) StartImport(ctx context.Context, source, message string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_logs (source, started_at, status, message) VALUES ($1, now(), $2, $3) RETURNING id`,
		source, ImportRunning, message,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start import %s", source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteImport(ctx context.Context, id int64, companies int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_logs SET status = $1, completed_at = now(), companies_imported = $2 WHERE id = $3`,
		ImportCompleted, companies, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete import %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import log not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) FailImport(ctx context.Context, id int64, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_logs SET status = $1, completed_at = now(), message = $2 WHERE id = $3`,
		ImportError, message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail import %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import log not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ListImports(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, started_at, completed_at, status, message, companies_imported
		 FROM import_logs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list imports")
	}
	defer rows.Close()

	var logs []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.Source, &l.StartedAt, &l.CompletedAt,
			&l.Status, &l.Message, &l.Companies); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list imports iterate")
}

func (s *PostgresStore) ListUngeocodedAddresses(ctx context.Context, limit int) ([]Address, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude
		 FROM addresses
		 WHERE latitude IS NULL AND line <> '' AND city <> ''
		 ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ungeocoded addresses")
	}
	defer rows.Close()

	var addrs []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Type, &a.Line, &a.Complement,
			&a.PostalCode, &a.City, &a.Country, &a.Latitude, &a.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan address")
		}
		addrs = append(addrs, a)
	}
	return addrs, eris.Wrap(rows.Err(), "postgres: list ungeocoded iterate")
}

func (s *PostgresStore) UpdateAddressCoords(ctx context.Context, addressID int64, lat, lng float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE addresses SET latitude = $1, longitude = $2 WHERE id = $3`,
		lat, lng, addressID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update address coords %d", addressID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("address not found: %d", addressID)
	}
	return nil
}

const summarySelect = `
	SELECT c.id, c.name, c.legal_name, c.registration,
	       COALESCE(a.line, ''), COALESCE(a.postal_code, ''), COALESCE(a.city, ''),
	       a.latitude, a.longitude
	FROM companies c
	LEFT JOIN addresses a ON a.company_id = c.id AND a.addr_type = 'siege'`

func scanSummaries(rows pgx.Rows) ([]CompanySummary, error) {
	var out []CompanySummary
	for rows.Next() {
		var cs CompanySummary
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.LegalName, &cs.Registration,
			&cs.Line, &cs.PostalCode, &cs.City, &cs.Latitude, &cs.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company summary")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate company summaries")
}

func (s *PostgresStore) ListCompanies(ctx context.Context, f CompanyFilter) ([]CompanySummary, int, error) {
	where := ` WHERE true`
	args := []any{}
	argIdx := 1

	if f.Activity != "" {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM company_activities ca
			JOIN activities act ON act.id = ca.activity_id
			WHERE ca.company_id = c.id AND act.label_key LIKE '%%' || $%d || '%%')`, argIdx)
		args = append(args, normalize.Key(f.Activity))
		argIdx++
	}
	if f.City != "" {
		where += fmt.Sprintf(` AND a.city ILIKE '%%' || $%d || '%%'`, argIdx)
		args = append(args, f.City)
		argIdx++
	}
	if f.PostalCode != "" {
		where += fmt.Sprintf(` AND a.postal_code LIKE $%d || '%%'`, argIdx)
		args = append(args, f.PostalCode)
		argIdx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM companies c
		LEFT JOIN addresses a ON a.company_id = c.id AND a.addr_type = 'siege'` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count companies")
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := summarySelect + where +
		fmt.Sprintf(` ORDER BY c.name LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	out, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PostgresStore) GetCompanyDetail(ctx context.Context, id int64) (*CompanyDetail, error) {
	var d CompanyDetail
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, legal_name, registration, legal_form, created_on, capital,
		        activity_code, employee_bracket, source, source_id, updated_at
		 FROM companies WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Name, &d.LegalName, &d.Registration, &d.LegalForm, &d.CreatedOn,
		&d.Capital, &d.ActivityCode, &d.EmployeeBracket, &d.Source, &d.SourceID, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude
		 FROM addresses WHERE company_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company addresses")
	}
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Type, &a.Line, &a.Complement,
			&a.PostalCode, &a.City, &a.Country, &a.Latitude, &a.Longitude); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan address")
		}
		d.Addresses = append(d.Addresses, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate addresses")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, company_id, contact_type, value, description
		 FROM contacts WHERE company_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company contacts")
	}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Type, &c.Value, &c.Description); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		d.Contacts = append(d.Contacts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate contacts")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, company_id, url, site_type FROM websites WHERE company_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company websites")
	}
	for rows.Next() {
		var w Website
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.URL, &w.Type); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan website")
		}
		d.Websites = append(d.Websites, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate websites")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT act.id, act.label, act.code
		 FROM activities act
		 JOIN company_activities ca ON ca.activity_id = act.id
		 WHERE ca.company_id = $1 ORDER BY act.label`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company activities")
	}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Label, &a.Code); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		d.Activities = append(d.Activities, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate activities")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, company_id, last_name, first_name, role, birth_date, role_start
		 FROM directors WHERE company_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company directors")
	}
	for rows.Next() {
		var dr Director
		if err := rows.Scan(&dr.ID, &dr.CompanyID, &dr.LastName, &dr.FirstName,
			&dr.Role, &dr.BirthDate, &dr.RoleStart); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan director")
		}
		d.Directors = append(d.Directors, dr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate directors")
	}

	return &d, nil
}

func (s *PostgresStore) SearchCompanies(ctx context.Context, query string, limit int) ([]CompanySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		summarySelect+`
		 WHERE c.name_key LIKE '%' || $1 || '%'
		    OR c.registration = $2
		    OR a.city ILIKE '%' || $2 || '%'
		 ORDER BY c.name LIMIT $3`,
		normalize.Key(query), query, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search companies")
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (s *PostgresStore) ListNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]NearbyCompany, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.legal_name, c.registration,
		        a.line, a.postal_code, a.city, a.latitude, a.longitude,
		        (6371 * acos(LEAST(1.0,
		          cos(radians($1)) * cos(radians(a.latitude)) * cos(radians(a.longitude) - radians($2))
		          + sin(radians($1)) * sin(radians(a.latitude))))) AS distance_km
		 FROM companies c
		 JOIN addresses a ON a.company_id = c.id AND a.addr_type = 'siege'
		 WHERE a.latitude IS NOT NULL AND a.longitude IS NOT NULL
		   AND (6371 * acos(LEAST(1.0,
		          cos(radians($1)) * cos(radians(a.latitude)) * cos(radians(a.longitude) - radians($2))
		          + sin(radians($1)) * sin(radians(a.latitude))))) <= $3
		 ORDER BY distance_km ASC
		 LIMIT $4`,
		lat, lng, radiusKM, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list nearby")
	}
	defer rows.Close()

	var out []NearbyCompany
	for rows.Next() {
		var n NearbyCompany
		if err := rows.Scan(&n.ID, &n.Name, &n.LegalName, &n.Registration,
			&n.Line, &n.PostalCode, &n.City, &n.Latitude, &n.Longitude, &n.DistanceKM); err != nil {
			return nil, eris.Wrap(err, "postgres: scan nearby company")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate nearby")
}

func (s *PostgresStore) ListActivities(ctx context.Context) ([]Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, code FROM activities ORDER BY label`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activities")
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Label, &a.Code); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate activities")
}

func (s *PostgresStore) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	err := s.pool.QueryRow(ctx,
		`SELECT id, label, code FROM activities WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Label, &a.Code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get activity %d", id)
	}
	return &a, nil
}

func (s *PostgresStore) ListCompaniesByActivity(ctx context.Context, activityID int64, page, limit int) ([]CompanySummary, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM company_activities WHERE activity_id = $1`,
		activityID,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count companies by activity")
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		summarySelect+`
		 JOIN company_activities ca ON ca.company_id = c.id
		 WHERE ca.activity_id = $1
		 ORDER BY c.name LIMIT $2 OFFSET $3`,
		activityID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list companies by activity")
	}
	defer rows.Close()

	out, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
