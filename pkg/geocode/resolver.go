package geocode

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AddressQuery is the address material the resolver builds its queries from.
type AddressQuery struct {
	Line       string
	PostalCode string
	City       string
	Country    string
}

// Resolver tries progressively looser queries until one resolves. French
// street lines often carry house numbers or shop names Nominatim does not
// know, so after the full address fails it retries without the first token
// of the street line, then with just postal code and city.
type Resolver struct {
	geocoder Geocoder
}

// NewResolver creates a Resolver.
func NewResolver(g Geocoder) *Resolver {
	return &Resolver{geocoder: g}
}

// queries builds the fallback ladder, most precise first. Duplicate and
// empty queries are dropped.
func (r *Resolver) queries(a AddressQuery) []string {
	country := a.Country
	if country == "" {
		country = "France"
	}
	locality := strings.TrimSpace(a.PostalCode + " " + a.City)

	var out []string
	add := func(parts ...string) {
		var kept []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) < 2 {
			return
		}
		q := strings.Join(kept, ", ")
		for _, seen := range out {
			if seen == q {
				return
			}
		}
		out = append(out, q)
	}

	add(a.Line, locality, country)
	if fields := strings.Fields(a.Line); len(fields) > 1 {
		add(strings.Join(fields[1:], " "), locality, country)
	}
	add(locality, country)
	return out
}

// Resolve geocodes an address through the fallback ladder. It returns
// ErrNoResult when every tier comes up empty. Provider errors are logged
// and treated as a miss for that tier; a cancelled context still aborts.
func (r *Resolver) Resolve(ctx context.Context, a AddressQuery) (*Result, error) {
	queries := r.queries(a)
	if len(queries) == 0 {
		return nil, ErrNoResult
	}

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geocode: resolve")
		}
		res, err := r.geocoder.Geocode(ctx, q)
		if err == nil {
			if i > 0 {
				zap.L().Debug("geocode: resolved on fallback tier",
					zap.Int("tier", i+1),
					zap.String("query", q),
				)
			}
			return res, nil
		}
		if !eris.Is(err, ErrNoResult) {
			zap.L().Debug("geocode: tier failed",
				zap.Int("tier", i+1),
				zap.String("query", q),
				zap.Error(err),
			)
		}
	}
	return nil, ErrNoResult
}
