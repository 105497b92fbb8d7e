package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/normalize"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

const ppleName = "pple"

// Pple scrapes the pple.fr result listing. Cards expose coordinates as data
// attributes, so addresses from this source arrive pre-geocoded.
type Pple struct {
	deps Deps
	sel  Selectors
}

// NewPple builds the pple source.
func NewPple(deps Deps) Source {
	sel, err := loadSelectors(ppleSelectors(), deps.Config.SelectorFile)
	if err != nil {
		zap.L().Warn("scrape: selector overrides ignored",
			zap.String("source", ppleName), zap.Error(err))
	}
	return &Pple{deps: deps, sel: sel}
}

func (s *Pple) Name() string { return ppleName }

func (s *Pple) Import(ctx context.Context, keyword, location string) (int, error) {
	base := s.deps.Config.BaseURL
	pageURL := func(page int) string {
		return fmt.Sprintf("%s?q=%s&ville=%s&page=%d",
			base, url.QueryEscape(keyword), url.QueryEscape(location), page)
	}
	return walkPages(ctx, s.deps, ppleName, pageURL, s.extractPage)
}

func (s *Pple) extractPage(ctx context.Context, doc *goquery.Document) (pageResult, error) {
	var res pageResult
	var loopErr error
	cards := doc.Find(s.sel.Result)
	res.nodes = cards.Length()
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		created, err := s.importCard(ctx, card)
		if err != nil {
			loopErr = err
			return false
		}
		if created {
			res.imported++
		}
		if err := s.deps.Sleeper.Sleep(ctx, randBetween(nodeDelayMin, nodeDelayMax)); err != nil {
			loopErr = err
			return false
		}
		return true
	})
	return res, loopErr
}

func (s *Pple) importCard(ctx context.Context, card *goquery.Selection) (bool, error) {
	name := cleanText(card.Find(s.sel.Name).First().Text())
	if name == "" {
		return false, nil
	}

	if _, err := s.deps.Store.FindCompanyIDByName(ctx, name, ppleName); err == nil {
		return false, nil
	} else if !eris.Is(err, directory.ErrNotFound) {
		return false, err
	}

	sourceID, _ := card.Attr(s.sel.SourceID)
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	id, err := s.deps.Store.InsertCompany(ctx, &directory.Company{
		Name:     name,
		Source:   ppleName,
		SourceID: sourceID,
	})
	if err != nil {
		return false, err
	}

	if line, postal, city, ok := splitAddress(card.Find(s.sel.Address).First().Text()); ok {
		addr := &directory.Address{
			CompanyID:  id,
			Type:       directory.AddressRegistered,
			Line:       line,
			PostalCode: postal,
			City:       city,
			Country:    "France",
		}
		addr.Latitude, addr.Longitude = cardCoords(card, s.sel)
		if addr.Latitude == nil && s.deps.Config.Geocode && s.deps.Resolver != nil {
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

	if phone := normalize.Phone(card.Find(s.sel.Phone).First().Text()); phone != "" {
		err := s.deps.Store.InsertContactIfAbsent(ctx, &directory.Contact{
			CompanyID: id,
			Type:      directory.ContactPhone,
			Value:     phone,
		})
		if err != nil {
			return false, err
		}
	}

	if email := cleanText(card.Find(s.sel.Email).First().Text()); email != "" {
		err := s.deps.Store.InsertContactIfAbsent(ctx, &directory.Contact{
			CompanyID: id,
			Type:      directory.ContactEmail,
			Value:     email,
		})
		if err != nil {
			return false, err
		}
	}

	if href, ok := card.Find(s.sel.Website).First().Attr("href"); ok && href != "" {
		err := s.deps.Store.InsertWebsiteIfAbsent(ctx, &directory.Website{
			CompanyID: id,
			URL:       href,
			Type:      directory.WebsiteOfficial,
		})
		if err != nil {
			return false, err
		}
	}

	for _, label := range splitList(card.Find(s.sel.Activities).First().Text()) {
		actID, err := s.deps.Store.GetOrCreateActivity(ctx, label, "")
		if err != nil {
			return false, err
		}
		if err := s.deps.Store.AssociateActivity(ctx, id, actID); err != nil {
			return false, err
		}
	}

	return true, nil
}

// cardCoords reads the lat/lng data attributes off a result card. Either
// both parse or neither is kept.
func cardCoords(card *goquery.Selection, sel Selectors) (*float64, *float64) {
	rawLat, _ := card.Attr(sel.Latitude)
	rawLng, _ := card.Attr(sel.Longitude)
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lng, errLng := strconv.ParseFloat(rawLng, 64)
	if errLat != nil || errLng != nil {
		return nil, nil
	}
	return &lat, &lng
}
