package scrape

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/normalize"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

const dataGouvName = "datagouv"

var (
	departmentLinkRe = regexp.MustCompile(`/departements/(\d+)-([^/]+)/index\.html$`)
	activityLinkRe   = regexp.MustCompile(`/departements/(\d+)-([^/]+)/([^/]+)/1\.html$`)
	companyLinkRe    = regexp.MustCompile(`/entreprise/([a-zA-Z-]+)-(\d{9})$`)
)

const (
	activityPauseMin   = 2 * time.Second
	activityPauseMax   = 4 * time.Second
	departmentPauseMin = 3 * time.Second
	departmentPauseMax = 8 * time.Second
)

// DataGouv walks the annuaire-entreprises static mirror hierarchically:
// departments, then activity categories, then company detail pages. Detail
// pages carry the SIREN, so deduplication is by registration number only.
type DataGouv struct {
	deps  Deps
	fails int
}

type department struct {
	Code string
	Slug string
}

// NewDataGouv builds the datagouv source.
func NewDataGouv(deps Deps) Source {
	return &DataGouv{deps: deps}
}

func (s *DataGouv) Name() string { return dataGouvName }

func (s *DataGouv) Import(ctx context.Context, keyword, location string) (int, error) {
	departments, err := s.listDepartments(ctx, keyword)
	if err != nil {
		return 0, err
	}

	total := 0
	for i, dept := range departments {
		n, err := s.importDepartment(ctx, dept)
		total += n
		if err != nil {
			return total, err
		}
		if i < len(departments)-1 {
			if err := s.deps.Sleeper.Sleep(ctx, randBetween(departmentPauseMin, departmentPauseMax)); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// listDepartments enumerates the department links from the directory page.
// A short numeric keyword restricts the walk to that single department code.
func (s *DataGouv) listDepartments(ctx context.Context, keyword string) ([]department, error) {
	wantCode := ""
	if len(keyword) <= 3 && keyword != "" {
		if _, err := strconv.Atoi(keyword); err == nil {
			wantCode = keyword
		}
	}

	doc, err := s.fetchDoc(ctx, s.deps.Config.BaseURL+"/departements/")
	if err != nil {
		return nil, err
	}

	var out []department
	seen := make(map[string]bool)
	if doc != nil {
		doc.Find(".fr-container.body-wrapper a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			m := departmentLinkRe.FindStringSubmatch(href)
			if m == nil || seen[m[1]] {
				return
			}
			if wantCode != "" && m[1] != wantCode {
				return
			}
			seen[m[1]] = true
			out = append(out, department{Code: m[1], Slug: m[2]})
		})
	}
	if len(out) == 0 {
		zap.L().Warn("scrape: no department links found, falling back to Paris",
			zap.String("source", dataGouvName))
		out = []department{{Code: "75", Slug: "paris"}}
	}
	return out, nil
}

func (s *DataGouv) importDepartment(ctx context.Context, dept department) (int, error) {
	indexURL := fmt.Sprintf("%s/departements/%s-%s/index.html", s.deps.Config.BaseURL, dept.Code, dept.Slug)
	doc, err := s.fetchDoc(ctx, indexURL)
	if err != nil || doc == nil {
		return 0, err
	}

	var activities []string
	seen := make(map[string]bool)
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := activityLinkRe.FindStringSubmatch(href)
		if m == nil || m[1] != dept.Code || seen[m[3]] {
			return
		}
		seen[m[3]] = true
		activities = append(activities, m[3])
	})

	total := 0
	for i, slug := range activities {
		n, err := s.importActivity(ctx, dept, slug)
		total += n
		if err != nil {
			return total, err
		}
		if i < len(activities)-1 {
			if err := s.deps.Sleeper.Sleep(ctx, randBetween(activityPauseMin, activityPauseMax)); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// importActivity paginates one (department, activity) listing and imports
// every company detail page it links to.
func (s *DataGouv) importActivity(ctx context.Context, dept department, activity string) (int, error) {
	maxPages := s.deps.Config.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	total := 0
	visited := make(map[string]bool)
	for page := 1; page <= maxPages; page++ {
		pageURL := fmt.Sprintf("%s/departements/%s-%s/%s/%d.html",
			s.deps.Config.BaseURL, dept.Code, dept.Slug, activity, page)
		if visited[pageURL] {
			break
		}
		visited[pageURL] = true

		doc, err := s.fetchDoc(ctx, pageURL)
		if err != nil {
			return total, err
		}
		if doc == nil {
			continue
		}

		imported := 0
		links := companyLinks(doc)
		for _, link := range links {
			created, err := s.importCompany(ctx, link.url, link.siren, activity)
			if err != nil {
				return total + imported, err
			}
			if created {
				imported++
			}
			if err := s.deps.Sleeper.Sleep(ctx, randBetween(nodeDelayMin, nodeDelayMax)); err != nil {
				return total + imported, err
			}
		}
		total += imported

		if page > 1 && imported == 0 {
			break
		}
		if !hasNextPageLink(doc, page+1) {
			break
		}
	}
	return total, nil
}

type companyLink struct {
	url   string
	siren string
}

// companyLinks collects the unique company detail links of a listing page.
func companyLinks(doc *goquery.Document) []companyLink {
	var out []companyLink
	seen := make(map[string]bool)
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := companyLinkRe.FindStringSubmatch(href)
		if m == nil || seen[m[2]] {
			return
		}
		seen[m[2]] = true
		out = append(out, companyLink{url: href, siren: m[2]})
	})
	return out
}

// hasNextPageLink reports whether the pagination block links to page n.
func hasNextPageLink(doc *goquery.Document, n int) bool {
	want := strconv.Itoa(n)
	found := false
	doc.Find(".pagination a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if cleanText(a.Text()) == want {
			found = true
			return false
		}
		return true
	})
	return found
}

// importCompany fetches one detail page and persists the company it
// describes. Companies already known by registration number are skipped.
func (s *DataGouv) importCompany(ctx context.Context, href, siren, activityCode string) (bool, error) {
	if _, err := s.deps.Store.FindCompanyIDByRegistration(ctx, siren); err == nil {
		return false, nil
	} else if !eris.Is(err, directory.ErrNotFound) {
		return false, err
	}
	// The stored registration may be the full SIRET, so check the
	// source identity as well.
	if _, err := s.deps.Store.FindCompanyIDBySource(ctx, dataGouvName, siren); err == nil {
		return false, nil
	} else if !eris.Is(err, directory.ErrNotFound) {
		return false, err
	}

	detailURL := href
	if strings.HasPrefix(detailURL, "/") {
		detailURL = s.deps.Config.BaseURL + detailURL
	}
	doc, err := s.fetchDoc(ctx, detailURL)
	if err != nil || doc == nil {
		return false, err
	}

	name := cleanText(doc.Find("h1, .company-name").First().Text())
	if name == "" {
		return false, nil
	}

	registration := siren
	if siret := extractSIRET(doc.Find(".company-siret, .siret").Text()); siret != "" {
		registration = siret
	}

	id, err := s.deps.Store.InsertCompany(ctx, &directory.Company{
		Name:         name,
		Registration: registration,
		LegalForm:    extractLegalForm(doc.Find(".company-legal-form, .legal-form").Text()),
		CreatedOn:    extractCreationDate(doc.Find(".company-creation-date, .creation-date").Text()),
		ActivityCode: activityCode,
		Source:       dataGouvName,
		SourceID:     siren,
	})
	if err != nil {
		return false, err
	}

	if line, postal, city, ok := splitAddress(tableValue(doc, "adresse postale")); ok {
		addr := &directory.Address{
			CompanyID:  id,
			Type:       directory.AddressRegistered,
			Line:       line,
			PostalCode: postal,
			City:       city,
			Country:    "France",
		}
		if s.deps.Config.Geocode && s.deps.Resolver != nil {
			res, err := s.deps.Resolver.Resolve(ctx, geocode.AddressQuery{
				Line:       line,
				PostalCode: postal,
				City:       city,
			})
			if err == nil {
				addr.Latitude = &res.Latitude
				addr.Longitude = &res.Longitude
			} else if ctx.Err() != nil {
				return false, err
			}
		}
		if err := s.deps.Store.UpsertAddress(ctx, addr); err != nil {
			return false, err
		}
	}

	label := tableValue(doc, "activite principale")
	if label == "" {
		label = "Activité " + activityCode
	}
	actID, err := s.deps.Store.GetOrCreateActivity(ctx, label, activityCode)
	if err != nil {
		return false, err
	}
	if err := s.deps.Store.AssociateActivity(ctx, id, actID); err != nil {
		return false, err
	}

	return true, nil
}

// tableValue finds the first table row whose first cell contains marker
// (compared accent- and case-insensitively) and returns its second cell.
func tableValue(doc *goquery.Document, marker string) string {
	marker = normalize.Fold(marker)
	var out string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return true
		}
		if strings.Contains(normalize.Fold(cleanText(cells.First().Text())), marker) {
			out = cleanText(cells.Eq(1).Text())
			return false
		}
		return true
	})
	return out
}

// fetchDoc fetches a page under the shared backoff policy. It returns
// (nil, nil) when the page was skipped on a non-retriable status.
func (s *DataGouv) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	maxFailures := s.deps.Config.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}

	for {
		if err := s.deps.Sleeper.Sleep(ctx, randBetween(s.deps.Config.DelayMin, s.deps.Config.DelayMax)); err != nil {
			return nil, err
		}

		p, err := s.deps.Client.Get(ctx, rawURL)
		if err != nil {
			s.fails++
			zap.L().Warn("scrape: fetch failed",
				zap.String("source", dataGouvName), zap.String("url", rawURL),
				zap.Int("fails", s.fails), zap.Error(err))
			if s.fails >= maxFailures {
				return nil, eris.Wrapf(err, "scrape: %s aborted after %d consecutive failures", dataGouvName, s.fails)
			}
			if err := s.deps.Sleeper.Sleep(ctx, transportBackoff); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case p.StatusCode == http.StatusForbidden || p.StatusCode == http.StatusTooManyRequests:
			s.fails++
			zap.L().Warn("scrape: blocked",
				zap.String("source", dataGouvName), zap.String("url", rawURL),
				zap.Int("status", p.StatusCode), zap.Int("fails", s.fails))
			if s.fails >= maxFailures {
				return nil, eris.Errorf("scrape: %s aborted after %d blocked responses", dataGouvName, s.fails)
			}
			if err := s.deps.Sleeper.Sleep(ctx, blockedBackoff); err != nil {
				return nil, err
			}
			continue
		case p.StatusCode != http.StatusOK:
			zap.L().Debug("scrape: skipping url",
				zap.String("source", dataGouvName), zap.String("url", rawURL),
				zap.Int("status", p.StatusCode))
			return nil, nil
		case isChallenge(p.Body):
			zap.L().Info("scrape: challenge page, backing off",
				zap.String("source", dataGouvName), zap.String("url", rawURL))
			if err := s.deps.Sleeper.Sleep(ctx, challengeBackoff); err != nil {
				return nil, err
			}
			continue
		}
		s.fails = 0

		doc, err := p.Document()
		if err != nil {
			zap.L().Warn("scrape: unparsable page",
				zap.String("source", dataGouvName), zap.String("url", rawURL), zap.Error(err))
			return nil, nil
		}
		return doc, nil
	}
}
