package scrape

import (
	"context"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	transportBackoff = 30 * time.Second
	blockedBackoff   = 60 * time.Second
	challengeBackoff = 120 * time.Second

	nodeDelayMin = 500 * time.Millisecond
	nodeDelayMax = time.Second

	defaultMaxPages    = 5
	defaultMaxFailures = 3
)

// pageResult reports what extracting one listing page yielded. nodes is the
// number of result cards found on the page, imported the number of companies
// newly created from them.
type pageResult struct {
	nodes    int
	imported int
}

// extractFunc turns one successfully fetched listing page into persisted
// records.
type extractFunc func(ctx context.Context, doc *goquery.Document) (pageResult, error)

// walkPages drives the pagination loop shared by the listing sources.
//
// Backoff policy: 403/429 and transport errors bump a consecutive-failure
// counter and retry the same page after a fixed sleep; the source aborts once
// the counter reaches the configured threshold. A challenge page triggers a
// long sleep and a same-page retry without counting as a failure. Any other
// non-200 skips the page. A successful fetch resets the counter.
//
// The loop stops at the page bound, when a page past the first yields zero
// result nodes or zero new companies, or with an error when the first page
// is empty.
func walkPages(ctx context.Context, deps Deps, source string, pageURL func(page int) string, extract extractFunc) (int, error) {
	cfg := deps.Config
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}

	total := 0
	fails := 0
	page := 1
	for page <= maxPages {
		if err := deps.Sleeper.Sleep(ctx, randBetween(cfg.DelayMin, cfg.DelayMax)); err != nil {
			return total, err
		}

		p, err := deps.Client.Get(ctx, pageURL(page))
		if err != nil {
			fails++
			zap.L().Warn("scrape: fetch failed",
				zap.String("source", source), zap.Int("page", page),
				zap.Int("fails", fails), zap.Error(err))
			if fails >= maxFailures {
				return total, eris.Wrapf(err, "scrape: %s aborted after %d consecutive failures", source, fails)
			}
			if err := deps.Sleeper.Sleep(ctx, transportBackoff); err != nil {
				return total, err
			}
			continue
		}

		switch {
		case p.StatusCode == http.StatusForbidden || p.StatusCode == http.StatusTooManyRequests:
			fails++
			zap.L().Warn("scrape: blocked",
				zap.String("source", source), zap.Int("page", page),
				zap.Int("status", p.StatusCode), zap.Int("fails", fails))
			if fails >= maxFailures {
				return total, eris.Errorf("scrape: %s aborted after %d blocked responses", source, fails)
			}
			if err := deps.Sleeper.Sleep(ctx, blockedBackoff); err != nil {
				return total, err
			}
			continue
		case p.StatusCode != http.StatusOK:
			zap.L().Warn("scrape: skipping page",
				zap.String("source", source), zap.Int("page", page),
				zap.Int("status", p.StatusCode))
			page++
			continue
		case isChallenge(p.Body):
			zap.L().Info("scrape: challenge page, backing off",
				zap.String("source", source), zap.Int("page", page))
			if err := deps.Sleeper.Sleep(ctx, challengeBackoff); err != nil {
				return total, err
			}
			continue
		}
		fails = 0

		doc, err := p.Document()
		if err != nil {
			zap.L().Warn("scrape: unparsable page",
				zap.String("source", source), zap.Int("page", page), zap.Error(err))
			page++
			continue
		}

		res, err := extract(ctx, doc)
		if err != nil {
			return total, err
		}
		if res.nodes == 0 {
			if page == 1 {
				return 0, eris.Errorf("scrape: %s returned no results on the first page", source)
			}
			break
		}
		total += res.imported
		if page > 1 && res.imported == 0 {
			break
		}

		page++
		if page <= maxPages {
			if err := deps.Sleeper.Sleep(ctx, randBetween(cfg.PageDelayMin, cfg.PageDelayMax)); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
