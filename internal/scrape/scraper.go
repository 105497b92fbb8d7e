// Package scrape implements the directory sources. Each source drives the
// shared page loop in listing.go (or its own drill-down walk for datagouv)
// and persists what it extracts through the directory store.
package scrape

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirene-labs/annuaire-cli/internal/config"
	"github.com/sirene-labs/annuaire-cli/internal/directory"
	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

// Source is one directory source. Import crawls the source for a keyword and
// location and returns the number of newly created companies.
type Source interface {
	Name() string
	Import(ctx context.Context, keyword, location string) (int, error)
}

// Deps is everything a source needs. A fresh Source is built per run from
// its Factory, so sources carry no shared mutable state.
type Deps struct {
	Store    directory.Store
	Client   fetch.Client
	Resolver *geocode.Resolver
	Sleeper  Sleeper
	Config   config.SourceConfig
}

// Factory builds a Source from its dependencies.
type Factory func(Deps) Source

// Sleeper abstracts blocking waits so tests run instantly. Sleep returns
// early with the context error when the context is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewSleeper returns the wall-clock Sleeper.
func NewSleeper() Sleeper {
	return realSleeper{}
}

// randBetween picks a random duration in [min, max].
func randBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
