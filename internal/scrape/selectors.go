package scrape

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Selectors holds the CSS selectors a listing scraper uses to pull fields
// out of a result card. Sites reshuffle their markup regularly, so the
// defaults can be overridden from a YAML file without a rebuild.
type Selectors struct {
	Result     string `yaml:"result"`
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	Phone      string `yaml:"phone"`
	Email      string `yaml:"email"`
	Website    string `yaml:"website"`
	Activities string `yaml:"activities"`
	SourceID   string `yaml:"source_id"`
	Latitude   string `yaml:"latitude"`
	Longitude  string `yaml:"longitude"`
}

func pagesJaunesSelectors() Selectors {
	return Selectors{
		Result:     ".bi-pro",
		Name:       ".denomination-links",
		Address:    ".address",
		Phone:      ".tel",
		Website:    ".site-internet a",
		Activities: ".activite",
		SourceID:   "data-idetablissement",
	}
}

func ppleSelectors() Selectors {
	return Selectors{
		Result:     ".search-result-item",
		Name:       ".company-name",
		Address:    ".company-address",
		Phone:      ".company-phone",
		Email:      ".company-email",
		Website:    ".company-website",
		Activities: ".company-categories",
		SourceID:   "data-company-id",
		Latitude:   "data-lat",
		Longitude:  "data-lng",
	}
}

// loadSelectors overlays defaults with any non-empty fields from a YAML
// file. An empty path returns the defaults untouched.
func loadSelectors(defaults Selectors, path string) (Selectors, error) {
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return defaults, eris.Wrapf(err, "scrape: reading selector file %s", path)
	}
	var override Selectors
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return defaults, eris.Wrapf(err, "scrape: parsing selector file %s", path)
	}
	merged := defaults
	if override.Result != "" {
		merged.Result = override.Result
	}
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Address != "" {
		merged.Address = override.Address
	}
	if override.Phone != "" {
		merged.Phone = override.Phone
	}
	if override.Email != "" {
		merged.Email = override.Email
	}
	if override.Website != "" {
		merged.Website = override.Website
	}
	if override.Activities != "" {
		merged.Activities = override.Activities
	}
	if override.SourceID != "" {
		merged.SourceID = override.SourceID
	}
	if override.Latitude != "" {
		merged.Latitude = override.Latitude
	}
	if override.Longitude != "" {
		merged.Longitude = override.Longitude
	}
	return merged, nil
}
