package directory

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sirene-labs/annuaire-cli/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend for local runs where no Postgres is available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	name_key         TEXT NOT NULL,
	legal_name       TEXT NOT NULL DEFAULT '',
	registration     TEXT NOT NULL DEFAULT '',
	legal_form       TEXT NOT NULL DEFAULT '',
	created_on       DATETIME,
	capital          REAL,
	activity_code    TEXT NOT NULL DEFAULT '',
	employee_bracket TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source, source_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_registration
	ON companies(registration) WHERE registration <> '';
CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key, source);

CREATE TABLE IF NOT EXISTS addresses (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id  INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	addr_type   TEXT NOT NULL DEFAULT 'siege',
	line        TEXT NOT NULL DEFAULT '',
	complement  TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT 'France',
	latitude    REAL,
	longitude   REAL,
	UNIQUE (company_id, addr_type, postal_code, city)
);

CREATE INDEX IF NOT EXISTS idx_addresses_postal_code ON addresses(postal_code);

CREATE TABLE IF NOT EXISTS contacts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id   INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	contact_type TEXT NOT NULL,
	value        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	UNIQUE (company_id, contact_type, value)
);

CREATE TABLE IF NOT EXISTS websites (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	site_type  TEXT NOT NULL DEFAULT 'officiel',
	UNIQUE (company_id, url)
);

CREATE TABLE IF NOT EXISTS activities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	label     TEXT NOT NULL,
	label_key TEXT NOT NULL UNIQUE,
	code      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_code
	ON activities(code) WHERE code <> '';

CREATE TABLE IF NOT EXISTS company_activities (
	company_id  INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	activity_id INTEGER NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	PRIMARY KEY (company_id, activity_id)
);

CREATE TABLE IF NOT EXISTS directors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	last_name  TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	birth_date DATETIME,
	role_start DATETIME,
	UNIQUE (company_id, last_name, first_name, role)
);

CREATE TABLE IF NOT EXISTS import_logs (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	source             TEXT NOT NULL,
	started_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at       DATETIME,
	status             TEXT NOT NULL DEFAULT 'running',
	message            TEXT NOT NULL DEFAULT '',
	companies_imported INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_import_logs_source ON import_logs(source, started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) findID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) FindCompanyIDByRegistration(ctx context.Context, registration string) (int64, error) {
	id, err := s.findID(ctx, `SELECT id FROM companies WHERE registration = ?`, registration)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, eris.Wrap(err, "sqlite: find company by registration")
	}
	return id, err
}

func (s *SQLiteStore) FindCompanyIDByName(ctx context.Context, name, source string) (int64, error) {
	id, err := s.findID(ctx,
		`SELECT id FROM companies WHERE name_key = ? AND source = ? ORDER BY id LIMIT 1`,
		normalize.Key(name), source)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, eris.Wrap(err, "sqlite: find company by name")
	}
	return id, err
}

func (s *SQLiteStore) FindCompanyIDBySource(ctx context.Context, source, sourceID string) (int64, error) {
	id, err := s.findID(ctx,
		`SELECT id FROM companies WHERE source = ? AND source_id = ?`,
		source, sourceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, eris.Wrap(err, "sqlite: find company by source")
	}
	return id, err
}

func (s *SQLiteStore) InsertCompany(ctx context.Context, c *Company) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies
		 (name, name_key, legal_name, registration, legal_form, created_on, capital,
		  activity_code, employee_bracket, source, source_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, normalize.Key(c.Name), c.LegalName, c.Registration, c.LegalForm,
		c.CreatedOn, c.Capital, c.ActivityCode, c.EmployeeBracket, c.Source, c.SourceID,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert company %s", c.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert company id")
	}
	c.ID = id
	return id, nil
}

func (s *SQLiteStore) UpsertAddress(ctx context.Context, a *Address) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses
		 (company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, addr_type, postal_code, city) DO UPDATE SET
		   line = excluded.line,
		   complement = excluded.complement,
		   latitude = COALESCE(excluded.latitude, addresses.latitude),
		   longitude = COALESCE(excluded.longitude, addresses.longitude)`,
		a.CompanyID, a.Type, a.Line, a.Complement, a.PostalCode, a.City, a.Country,
		a.Latitude, a.Longitude,
	)
	return eris.Wrapf(err, "sqlite: upsert address for company %d", a.CompanyID)
}

func (s *SQLiteStore) InsertContactIfAbsent(ctx context.Context, c *Contact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (company_id, contact_type, value, description)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (company_id, contact_type, value) DO NOTHING`,
		c.CompanyID, c.Type, c.Value, c.Description,
	)
	return eris.Wrapf(err, "sqlite: insert contact for company %d", c.CompanyID)
}

func (s *SQLiteStore) InsertWebsiteIfAbsent(ctx context.Context, w *Website) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO websites (company_id, url, site_type)
		 VALUES (?, ?, ?)
		 ON CONFLICT (company_id, url) DO NOTHING`,
		w.CompanyID, w.URL, w.Type,
	)
	return eris.Wrapf(err, "sqlite: insert website for company %d", w.CompanyID)
}

func (s *SQLiteStore) InsertDirectorIfAbsent(ctx context.Context, d *Director) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO directors (company_id, last_name, first_name, role, birth_date, role_start)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, last_name, first_name, role) DO NOTHING`,
		d.CompanyID, d.LastName, d.FirstName, d.Role, d.BirthDate, d.RoleStart,
	)
	return eris.Wrapf(err, "sqlite: insert director for company %d", d.CompanyID)
}

func (s *SQLiteStore) GetOrCreateActivity(ctx context.Context, label, code string) (int64, error) {
	label, code = splitActivityLabel(label, code)
	if code != "" {
		id, err := s.findID(ctx, `SELECT id FROM activities WHERE code = ?`, code)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, eris.Wrap(err, "sqlite: find activity by code")
		}
	}

	key := normalize.Key(label)
	var id int64
	var existingCode string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code FROM activities WHERE label_key = ?`,
		key,
	).Scan(&id, &existingCode)
	switch {
	case err == nil:
		if code != "" && existingCode == "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE activities SET code = ? WHERE id = ? AND code = ''`,
				code, id,
			); err != nil {
				return 0, eris.Wrap(err, "sqlite: backfill activity code")
			}
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO activities (label, label_key, code) VALUES (?, ?, ?)`,
			label, key, code,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert activity %s", label)
		}
		id, err := res.LastInsertId()
		return id, eris.Wrap(err, "sqlite: insert activity id")
	default:
		return 0, eris.Wrap(err, "sqlite: find activity by label")
	}
}

func (s *SQLiteStore) AssociateActivity(ctx context.Context, companyID, activityID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO company_activities (company_id, activity_id)
		 VALUES (?, ?)
		 ON CONFLICT (company_id, activity_id) DO NOTHING`,
		companyID, activityID,
	)
	return eris.Wrapf(err, "sqlite: associate activity %d with company %d", activityID, companyID)
}

func (s *SQLiteStore) StartImport(ctx context.Context, source, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_logs (source, started_at, status, message) VALUES (?, ?, ?, ?)`,
		source, time.Now().UTC(), ImportRunning, message,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start import %s", source)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: start import id")
}

func (s *SQLiteStore) CompleteImport(ctx context.Context, id int64, companies int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_logs SET status = ?, completed_at = ?, companies_imported = ? WHERE id = ?`,
		ImportCompleted, time.Now().UTC(), companies, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete import %d", id)
	}
	return checkRowsAffected(res, "import log", id)
}

func (s *SQLiteStore) FailImport(ctx context.Context, id int64, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_logs SET status = ?, completed_at = ?, message = ? WHERE id = ?`,
		ImportError, time.Now().UTC(), message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail import %d", id)
	}
	return checkRowsAffected(res, "import log", id)
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %d", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", kind, id)
	}
	return nil
}

func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, completed_at, status, message, companies_imported
		 FROM import_logs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list imports")
	}
	defer rows.Close()

	var logs []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.Source, &l.StartedAt, &l.CompletedAt,
			&l.Status, &l.Message, &l.Companies); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list imports iterate")
}

func (s *SQLiteStore) ListUngeocodedAddresses(ctx context.Context, limit int) ([]Address, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude
		 FROM addresses
		 WHERE latitude IS NULL AND line <> '' AND city <> ''
		 ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ungeocoded addresses")
	}
	defer rows.Close()

	var addrs []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Type, &a.Line, &a.Complement,
			&a.PostalCode, &a.City, &a.Country, &a.Latitude, &a.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan address")
		}
		addrs = append(addrs, a)
	}
	return addrs, eris.Wrap(rows.Err(), "sqlite: list ungeocoded iterate")
}

func (s *SQLiteStore) UpdateAddressCoords(ctx context.Context, addressID int64, lat, lng float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET latitude = ?, longitude = ? WHERE id = ?`,
		lat, lng, addressID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update address coords %d", addressID)
	}
	return checkRowsAffected(res, "address", addressID)
}

const sqliteSummarySelect = `
	SELECT c.id, c.name, c.legal_name, c.registration,
	       COALESCE(a.line, ''), COALESCE(a.postal_code, ''), COALESCE(a.city, ''),
	       a.latitude, a.longitude
	FROM companies c
	LEFT JOIN addresses a ON a.company_id = c.id AND a.addr_type = 'siege'`

func (s *SQLiteStore) scanSummaries(rows *sql.Rows) ([]CompanySummary, error) {
	var out []CompanySummary
	for rows.Next() {
		var cs CompanySummary
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.LegalName, &cs.Registration,
			&cs.Line, &cs.PostalCode, &cs.City, &cs.Latitude, &cs.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company summary")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate company summaries")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, f CompanyFilter) ([]CompanySummary, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if f.Activity != "" {
		where += ` AND EXISTS (
			SELECT 1 FROM company_activities ca
			JOIN activities act ON act.id = ca.activity_id
			WHERE ca.company_id = c.id AND act.label_key LIKE '%' || ? || '%')`
		args = append(args, normalize.Key(f.Activity))
	}
	if f.City != "" {
		where += ` AND lower(a.city) LIKE '%' || lower(?) || '%'`
		args = append(args, f.City)
	}
	if f.PostalCode != "" {
		where += ` AND a.postal_code LIKE ? || '%'`
		args = append(args, f.PostalCode)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM companies c
		LEFT JOIN addresses a ON a.company_id = c.id AND a.addr_type = 'siege'` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count companies")
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := sqliteSummarySelect + where + ` ORDER BY c.name LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	out, err := s.scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *SQLiteStore) GetCompanyDetail(ctx context.Context, id int64) (*CompanyDetail, error) {
	var d CompanyDetail
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, legal_name, registration, legal_form, created_on, capital,
		        activity_code, employee_bracket, source, source_id, updated_at
		 FROM companies WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.Name, &d.LegalName, &d.Registration, &d.LegalForm, &d.CreatedOn,
		&d.Capital, &d.ActivityCode, &d.EmployeeBracket, &d.Source, &d.SourceID, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}

	collect := func(query string, scan func(*sql.Rows) error) error {
		rows, err := s.db.QueryContext(ctx, query, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	}

	err = collect(
		`SELECT id, company_id, addr_type, line, complement, postal_code, city, country, latitude, longitude
		 FROM addresses WHERE company_id = ? ORDER BY id`,
		func(rows *sql.Rows) error {
			var a Address
			if err := rows.Scan(&a.ID, &a.CompanyID, &a.Type, &a.Line, &a.Complement,
				&a.PostalCode, &a.City, &a.Country, &a.Latitude, &a.Longitude); err != nil {
				return err
			}
			d.Addresses = append(d.Addresses, a)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company addresses")
	}

	err = collect(
		`SELECT id, company_id, contact_type, value, description
		 FROM contacts WHERE company_id = ? ORDER BY id`,
		func(rows *sql.Rows) error {
			var c Contact
			if err := rows.Scan(&c.ID, &c.CompanyID, &c.Type, &c.Value, &c.Description); err != nil {
				return err
			}
			d.Contacts = append(d.Contacts, c)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company contacts")
	}

	err = collect(
		`SELECT id, company_id, url, site_type FROM websites WHERE company_id = ? ORDER BY id`,
		func(rows *sql.Rows) error {
			var w Website
			if err := rows.Scan(&w.ID, &w.CompanyID, &w.URL, &w.Type); err != nil {
				return err
			}
			d.Websites = append(d.Websites, w)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company websites")
	}

	err = collect(
		`SELECT act.id, act.label, act.code
		 FROM activities act
		 JOIN company_activities ca ON ca.activity_id = act.id
		 WHERE ca.company_id = ? ORDER BY act.label`,
		func(rows *sql.Rows) error {
			var a Activity
			if err := rows.Scan(&a.ID, &a.Label, &a.Code); err != nil {
				return err
			}
			d.Activities = append(d.Activities, a)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company activities")
	}

	err = collect(
		`SELECT id, company_id, last_name, first_name, role, birth_date, role_start
		 FROM directors WHERE company_id = ? ORDER BY id`,
		func(rows *sql.Rows) error {
			var dr Director
			if err := rows.Scan(&dr.ID, &dr.CompanyID, &dr.LastName, &dr.FirstName,
				&dr.Role, &dr.BirthDate, &dr.RoleStart); err != nil {
				return err
			}
			d.Directors = append(d.Directors, dr)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company directors")
	}

	return &d, nil
}

func (s *SQLiteStore) SearchCompanies(ctx context.Context, query string, limit int) ([]CompanySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		sqliteSummarySelect+`
		 WHERE c.name_key LIKE '%' || ? || '%'
		    OR c.registration = ?
		    OR lower(a.city) LIKE '%' || lower(?) || '%'
		 ORDER BY c.name LIMIT ?`,
		normalize.Key(query), query, query, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search companies")
	}
	defer rows.Close()
	return s.scanSummaries(rows)
}

// ListNearby filters candidates by a bounding box in SQL, then computes the
// exact haversine distance in Go. SQLite has no trig functions by default.
func (s *SQLiteStore) ListNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]NearbyCompany, error) {
	if limit <= 0 {
		limit = 50
	}
	latDelta := radiusKM / 111.0
	lngDelta := radiusKM / (111.0 * cosDeg(lat))

	rows, err := s.db.QueryContext(ctx,
		sqliteSummarySelect+`
		 WHERE a.latitude BETWEEN ? AND ?
		   AND a.longitude BETWEEN ? AND ?`,
		lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nearby")
	}
	defer rows.Close()

	candidates, err := s.scanSummaries(rows)
	if err != nil {
		return nil, err
	}

	var out []NearbyCompany
	for _, cs := range candidates {
		if cs.Latitude == nil || cs.Longitude == nil {
			continue
		}
		dist := haversineKM(lat, lng, *cs.Latitude, *cs.Longitude)
		if dist <= radiusKM {
			out = append(out, NearbyCompany{CompanySummary: cs, DistanceKM: dist})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) ListActivities(ctx context.Context) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, code FROM activities ORDER BY label`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Label, &a.Code); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate activities")
}

func (s *SQLiteStore) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, code FROM activities WHERE id = ?`,
		id,
	).Scan(&a.ID, &a.Label, &a.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get activity %d", id)
	}
	return &a, nil
}

func (s *SQLiteStore) ListCompaniesByActivity(ctx context.Context, activityID int64, page, limit int) ([]CompanySummary, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM company_activities WHERE activity_id = ?`,
		activityID,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count companies by activity")
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		sqliteSummarySelect+`
		 JOIN company_activities ca ON ca.company_id = c.id
		 WHERE ca.activity_id = ?
		 ORDER BY c.name LIMIT ? OFFSET ?`,
		activityID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list companies by activity")
	}
	defer rows.Close()

	out, err := s.scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// cosDeg clamps near-polar latitudes so the longitude delta stays finite.
func cosDeg(deg float64) float64 {
	c := math.Abs(math.Cos(deg * math.Pi / 180))
	if c < 0.01 {
		return 0.01
	}
	return c
}
