package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/directory"
)

const infogreffeName = "infogreffe"

// Infogreffe imports from the registry JSON API in a single authenticated
// request. Every result carries a SIRET, so deduplication is by
// registration number.
type Infogreffe struct {
	deps Deps
}

// NewInfogreffe builds the infogreffe source.
func NewInfogreffe(deps Deps) Source {
	return &Infogreffe{deps: deps}
}

func (s *Infogreffe) Name() string { return infogreffeName }

type infogreffeResponse struct {
	Results []infogreffeResult `json:"results"`
}

type infogreffeResult struct {
	Siret           string              `json:"siret"`
	Denomination    string              `json:"denomination"`
	NomCommercial   string              `json:"nom_commercial"`
	DateCreation    string              `json:"date_creation"`
	FormeJuridique  string              `json:"forme_juridique"`
	Capital         *float64            `json:"capital"`
	CodeNAF         string              `json:"code_naf"`
	TrancheEffectif string              `json:"tranche_effectif"`
	Dirigeants      []infogreffeOfficer `json:"dirigeants"`
	Siege           infogreffeAddress   `json:"siege"`
}

type infogreffeOfficer struct {
	Nom               string `json:"nom"`
	Prenom            string `json:"prenom"`
	Fonction          string `json:"fonction"`
	DateDebutFonction string `json:"date_debut_fonction"`
}

type infogreffeAddress struct {
	Adresse    string `json:"adresse"`
	CodePostal string `json:"code_postal"`
	Ville      string `json:"ville"`
}

func (s *Infogreffe) Import(ctx context.Context, keyword, location string) (int, error) {
	reqURL := fmt.Sprintf("%s?q=%s&ville=%s&limit=100",
		s.deps.Config.BaseURL, url.QueryEscape(keyword), url.QueryEscape(location))

	var headers map[string]string
	if s.deps.Config.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + s.deps.Config.APIKey}
	}

	p, err := s.deps.Client.GetWithHeaders(ctx, reqURL, headers)
	if err != nil {
		return 0, eris.Wrapf(err, "scrape: %s request", infogreffeName)
	}
	if p.StatusCode != http.StatusOK {
		zap.L().Warn("scrape: api returned non-ok status",
			zap.String("source", infogreffeName), zap.Int("status", p.StatusCode))
		return 0, nil
	}

	var resp infogreffeResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return 0, eris.Wrapf(err, "scrape: %s decode response", infogreffeName)
	}

	imported := 0
	for i := range resp.Results {
		created, err := s.importResult(ctx, &resp.Results[i])
		if err != nil {
			return imported, err
		}
		if created {
			imported++
		}
	}
	return imported, nil
}

func (s *Infogreffe) importResult(ctx context.Context, r *infogreffeResult) (bool, error) {
	if r.Siret == "" {
		return false, nil
	}

	if _, err := s.deps.Store.FindCompanyIDByRegistration(ctx, r.Siret); err == nil {
		return false, nil
	} else if !eris.Is(err, directory.ErrNotFound) {
		return false, err
	}

	name := r.NomCommercial
	if name == "" {
		name = r.Denomination
	}
	if name == "" {
		return false, nil
	}

	id, err := s.deps.Store.InsertCompany(ctx, &directory.Company{
		Name:            name,
		LegalName:       r.Denomination,
		Registration:    r.Siret,
		LegalForm:       r.FormeJuridique,
		CreatedOn:       parseISODate(r.DateCreation),
		Capital:         r.Capital,
		ActivityCode:    r.CodeNAF,
		EmployeeBracket: r.TrancheEffectif,
		Source:          infogreffeName,
		SourceID:        r.Siret,
	})
	if err != nil {
		return false, err
	}

	for _, d := range r.Dirigeants {
		if d.Nom == "" {
			continue
		}
		err := s.deps.Store.InsertDirectorIfAbsent(ctx, &directory.Director{
			CompanyID: id,
			LastName:  d.Nom,
			FirstName: d.Prenom,
			Role:      d.Fonction,
			RoleStart: parseISODate(d.DateDebutFonction),
		})
		if err != nil {
			return false, err
		}
	}

	if r.Siege.Adresse != "" && r.Siege.CodePostal != "" && r.Siege.Ville != "" {
		err := s.deps.Store.UpsertAddress(ctx, &directory.Address{
			CompanyID:  id,
			Type:       directory.AddressRegistered,
			Line:       cleanText(r.Siege.Adresse),
			PostalCode: r.Siege.CodePostal,
			City:       cleanText(r.Siege.Ville),
			Country:    "France",
		})
		if err != nil {
			return false, err
		}
	}

	if r.CodeNAF != "" {
		actID, err := s.deps.Store.GetOrCreateActivity(ctx, "Activité "+r.CodeNAF, r.CodeNAF)
		if err != nil {
			return false, err
		}
		if err := s.deps.Store.AssociateActivity(ctx, id, actID); err != nil {
			return false, err
		}
	}

	return true, nil
}

// parseISODate parses a YYYY-MM-DD date, returning nil when absent or bad.
func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
