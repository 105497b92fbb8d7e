package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirene-labs/annuaire-cli/internal/normalize"
)

// MemoryStore is an in-memory Store used in tests and for dry runs. It
// applies the same dedup rules as the SQL backends.
type MemoryStore struct {
	mu sync.Mutex

	nextCompany  int64
	nextAddress  int64
	nextContact  int64
	nextWebsite  int64
	nextActivity int64
	nextDirector int64
	nextImport   int64

	companies  []Company
	nameKeys   map[int64]string
	addresses  []Address
	contacts   []Contact
	websites   []Website
	activities []Activity
	actKeys    map[int64]string
	assocs     map[[2]int64]bool
	directors  []Director
	imports    []ImportLog
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nameKeys: make(map[int64]string),
		actKeys:  make(map[int64]string),
		assocs:   make(map[[2]int64]bool),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) FindCompanyIDByRegistration(ctx context.Context, registration string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Registration != "" && c.Registration == registration {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) FindCompanyIDByName(ctx context.Context, name, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize.Key(name)
	for _, c := range s.companies {
		if c.Source == source && s.nameKeys[c.ID] == key {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) FindCompanyIDBySource(ctx context.Context, source, sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Source == source && c.SourceID == sourceID {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) InsertCompany(ctx context.Context, c *Company) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCompany++
	c.ID = s.nextCompany
	c.UpdatedAt = time.Now().UTC()
	s.companies = append(s.companies, *c)
	s.nameKeys[c.ID] = normalize.Key(c.Name)
	return c.ID, nil
}

func (s *MemoryStore) UpsertAddress(ctx context.Context, a *Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.addresses {
		ex := &s.addresses[i]
		if ex.CompanyID == a.CompanyID && ex.Type == a.Type &&
			ex.PostalCode == a.PostalCode && ex.City == a.City {
			ex.Line = a.Line
			ex.Complement = a.Complement
			if a.Latitude != nil {
				ex.Latitude = a.Latitude
			}
			if a.Longitude != nil {
				ex.Longitude = a.Longitude
			}
			a.ID = ex.ID
			return nil
		}
	}
	s.nextAddress++
	a.ID = s.nextAddress
	s.addresses = append(s.addresses, *a)
	return nil
}

func (s *MemoryStore) InsertContactIfAbsent(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.contacts {
		if ex.CompanyID == c.CompanyID && ex.Type == c.Type && ex.Value == c.Value {
			return nil
		}
	}
	s.nextContact++
	c.ID = s.nextContact
	s.contacts = append(s.contacts, *c)
	return nil
}

func (s *MemoryStore) InsertWebsiteIfAbsent(ctx context.Context, w *Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.websites {
		if ex.CompanyID == w.CompanyID && ex.URL == w.URL {
			return nil
		}
	}
	s.nextWebsite++
	w.ID = s.nextWebsite
	s.websites = append(s.websites, *w)
	return nil
}

func (s *MemoryStore) InsertDirectorIfAbsent(ctx context.Context, d *Director) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.directors {
		if ex.CompanyID == d.CompanyID && ex.LastName == d.LastName &&
			ex.FirstName == d.FirstName && ex.Role == d.Role {
			return nil
		}
	}
	s.nextDirector++
	d.ID = s.nextDirector
	s.directors = append(s.directors, *d)
	return nil
}

func (s *MemoryStore) GetOrCreateActivity(ctx context.Context, label, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label, code = splitActivityLabel(label, code)
	if code != "" {
		for _, a := range s.activities {
			if a.Code == code {
				return a.ID, nil
			}
		}
	}
	key := normalize.Key(label)
	for i := range s.activities {
		a := &s.activities[i]
		if s.actKeys[a.ID] == key {
			if code != "" && a.Code == "" {
				a.Code = code
			}
			return a.ID, nil
		}
	}
	s.nextActivity++
	a := Activity{ID: s.nextActivity, Label: label, Code: code}
	s.activities = append(s.activities, a)
	s.actKeys[a.ID] = key
	return a.ID, nil
}

func (s *MemoryStore) AssociateActivity(ctx context.Context, companyID, activityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assocs[[2]int64{companyID, activityID}] = true
	return nil
}

func (s *MemoryStore) StartImport(ctx context.Context, source, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextImport++
	s.imports = append(s.imports, ImportLog{
		ID:        s.nextImport,
		Source:    source,
		StartedAt: time.Now().UTC(),
		Status:    ImportRunning,
		Message:   message,
	})
	return s.nextImport, nil
}

func (s *MemoryStore) CompleteImport(ctx context.Context, id int64, companies int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.imports {
		if s.imports[i].ID == id {
			now := time.Now().UTC()
			s.imports[i].Status = ImportCompleted
			s.imports[i].CompletedAt = &now
			s.imports[i].Companies = companies
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) FailImport(ctx context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.imports {
		if s.imports[i].ID == id {
			now := time.Now().UTC()
			s.imports[i].Status = ImportError
			s.imports[i].CompletedAt = &now
			s.imports[i].Message = message
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListImports(ctx context.Context, limit int) ([]ImportLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]ImportLog, len(s.imports))
	copy(out, s.imports)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListUngeocodedAddresses(ctx context.Context, limit int) ([]Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []Address
	for _, a := range s.addresses {
		if a.Latitude == nil && a.Line != "" && a.City != "" {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateAddressCoords(ctx context.Context, addressID int64, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.addresses {
		if s.addresses[i].ID == addressID {
			s.addresses[i].Latitude = &lat
			s.addresses[i].Longitude = &lng
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) registeredAddress(companyID int64) *Address {
	for i := range s.addresses {
		if s.addresses[i].CompanyID == companyID && s.addresses[i].Type == AddressRegistered {
			return &s.addresses[i]
		}
	}
	return nil
}

func (s *MemoryStore) summary(c Company) CompanySummary {
	cs := CompanySummary{
		ID:           c.ID,
		Name:         c.Name,
		LegalName:    c.LegalName,
		Registration: c.Registration,
	}
	if a := s.registeredAddress(c.ID); a != nil {
		cs.Line = a.Line
		cs.PostalCode = a.PostalCode
		cs.City = a.City
		cs.Latitude = a.Latitude
		cs.Longitude = a.Longitude
	}
	return cs
}

func (s *MemoryStore) ListCompanies(ctx context.Context, f CompanyFilter) ([]CompanySummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []CompanySummary
	for _, c := range s.companies {
		cs := s.summary(c)
		if f.City != "" && !strings.Contains(normalize.Fold(cs.City), normalize.Fold(f.City)) {
			continue
		}
		if f.PostalCode != "" && !strings.HasPrefix(cs.PostalCode, f.PostalCode) {
			continue
		}
		if f.Activity != "" && !s.companyHasActivity(c.ID, f.Activity) {
			continue
		}
		matched = append(matched, cs)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) companyHasActivity(companyID int64, query string) bool {
	key := normalize.Key(query)
	for pair := range s.assocs {
		if pair[0] != companyID {
			continue
		}
		if !s.assocs[pair] {
			continue
		}
		if strings.Contains(s.actKeys[pair[1]], key) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetCompanyDetail(ctx context.Context, id int64) (*CompanyDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d CompanyDetail
	found := false
	for _, c := range s.companies {
		if c.ID == id {
			d.Company = c
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	for _, a := range s.addresses {
		if a.CompanyID == id {
			d.Addresses = append(d.Addresses, a)
		}
	}
	for _, c := range s.contacts {
		if c.CompanyID == id {
			d.Contacts = append(d.Contacts, c)
		}
	}
	for _, w := range s.websites {
		if w.CompanyID == id {
			d.Websites = append(d.Websites, w)
		}
	}
	for _, a := range s.activities {
		if s.assocs[[2]int64{id, a.ID}] {
			d.Activities = append(d.Activities, a)
		}
	}
	for _, dr := range s.directors {
		if dr.CompanyID == id {
			d.Directors = append(d.Directors, dr)
		}
	}
	return &d, nil
}

func (s *MemoryStore) SearchCompanies(ctx context.Context, query string, limit int) ([]CompanySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	key := normalize.Key(query)
	var out []CompanySummary
	for _, c := range s.companies {
		cs := s.summary(c)
		if strings.Contains(s.nameKeys[c.ID], key) ||
			(c.Registration != "" && c.Registration == query) ||
			strings.Contains(normalize.Fold(cs.City), normalize.Fold(query)) {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]NearbyCompany, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []NearbyCompany
	for _, c := range s.companies {
		cs := s.summary(c)
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

func (s *MemoryStore) ListActivities(ctx context.Context) ([]Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Activity, len(s.activities))
	copy(out, s.activities)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *MemoryStore) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activities {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCompaniesByActivity(ctx context.Context, activityID int64, page, limit int) ([]CompanySummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []CompanySummary
	for _, c := range s.companies {
		if s.assocs[[2]int64{c.ID, activityID}] {
			matched = append(matched, s.summary(c))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
