// Package importer runs the import campaign: every keyword against every
// enabled source, sequentially, with per-run bookkeeping in the import log.
package importer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/internal/scrape"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

// Orchestrator walks (keyword, source) pairs one at a time. A failing
// source is recorded in the import log and never stops the remaining pairs.
type Orchestrator struct {
	store    directory.Store
	client   fetch.Client
	registry *scrape.Registry
	resolver *geocode.Resolver
	sleeper  scrape.Sleeper
	cfg      *config.Config
}

// New creates an Orchestrator.
func New(store directory.Store, client fetch.Client, registry *scrape.Registry, resolver *geocode.Resolver, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		client:   client,
		registry: registry,
		resolver: resolver,
		sleeper:  scrape.NewSleeper(),
		cfg:      cfg,
	}
}

// WithSleeper replaces the pacing sleeper, used by tests.
func (o *Orchestrator) WithSleeper(s scrape.Sleeper) *Orchestrator {
	o.sleeper = s
	return o
}

// Summary totals one orchestrator run.
type Summary struct {
	Imported int
	Failed   int
	BySource map[string]int
}

// Run imports every keyword from every named source. Only a cancelled
// context or a failure to open an import-log entry aborts the run early.
func (o *Orchestrator) Run(ctx context.Context, keywords []string, location string, sources []string) (Summary, error) {
	summary := Summary{BySource: make(map[string]int)}

	pairs := 0
	for _, keyword := range keywords {
		for _, name := range sources {
			if pairs > 0 {
				pause := randBetween(o.cfg.Import.SourcePauseMin, o.cfg.Import.SourcePauseMax)
				if err := o.sleeper.Sleep(ctx, pause); err != nil {
					return summary, err
				}
			}
			pairs++

			if err := o.runOne(ctx, keyword, location, name, &summary); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (o *Orchestrator) runOne(ctx context.Context, keyword, location, name string, summary *Summary) error {
	o.client.SetUserAgent(fetch.RandomFrom(o.cfg.Fetch.UserAgents))

	logID, err := o.store.StartImport(ctx, name, fmt.Sprintf("keyword=%s location=%s", keyword, location))
	if err != nil {
		return err
	}

	factory, err := o.registry.Get(name)
	if err != nil {
		o.failRun(ctx, logID, name, err)
		summary.Failed++
		return nil
	}

	source := factory(scrape.Deps{
		Store:    o.store,
		Client:   o.client,
		Resolver: o.resolver,
		Sleeper:  o.sleeper,
		Config:   o.cfg.Source(name),
	})

	zap.L().Info("import: source started",
		zap.String("source", name), zap.String("keyword", keyword), zap.String("location", location))

	count, err := source.Import(ctx, keyword, location)
	if err != nil {
		o.failRun(ctx, logID, name, err)
		summary.Failed++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	if err := o.store.CompleteImport(ctx, logID, count); err != nil {
		return err
	}
	summary.Imported += count
	summary.BySource[name] += count

	zap.L().Info("import: source completed",
		zap.String("source", name), zap.String("keyword", keyword), zap.Int("companies", count))
	return nil
}

func (o *Orchestrator) failRun(ctx context.Context, logID int64, name string, cause error) {
	zap.L().Warn("import: source failed", zap.String("source", name), zap.Error(cause))
	if err := o.store.FailImport(context.WithoutCancel(ctx), logID, cause.Error()); err != nil {
		zap.L().Error("import: recording failure", zap.Int64("log_id", logID), zap.Error(err))
	}
}

// GeocodeMissing resolves coordinates for addresses persisted without them.
// Addresses no tier can resolve are left untouched.
func (o *Orchestrator) GeocodeMissing(ctx context.Context, limit int) (int, error) {
	if o.resolver == nil {
		return 0, nil
	}

	addresses, err := o.store.ListUngeocodedAddresses(ctx, limit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, addr := range addresses {
		res, err := o.resolver.Resolve(ctx, geocode.AddressQuery{
			Line:       addr.Line,
			PostalCode: addr.PostalCode,
			City:       addr.City,
			Country:    addr.Country,
		})
		if err != nil {
			if ctx.Err() != nil {
				return updated, err
			}
			continue
		}
		if err := o.store.UpdateAddressCoords(ctx, addr.ID, res.Latitude, res.Longitude); err != nil {
			return updated, err
		}
		updated++
	}

	zap.L().Info("import: geocoded missing addresses",
		zap.Int("candidates", len(addresses)), zap.Int("updated", updated))
	return updated, nil
}

// randBetween picks a random duration in [min, max].
func randBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
