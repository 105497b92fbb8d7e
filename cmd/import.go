package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sirene-labs/annuaire-cli/internal/fetch"
	"github.com/sirene-labs/annuaire-cli/internal/importer"
	"github.com/sirene-labs/annuaire-cli/internal/scrape"
	"github.com/sirene-labs/annuaire-cli/pkg/geocode"
)

var (
	importKeywords       string
	importLocation       string
	importSources        string
	importGeocodeMissing bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import companies from the configured sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		keywords := cfg.Import.Keywords
		if importKeywords != "" {
			keywords = splitFlagList(importKeywords)
		}
		if len(keywords) == 0 {
			return eris.New("no keywords given (--keywords or import.keywords)")
		}

		location := cfg.Import.Location
		if importLocation != "" {
			location = importLocation
		}

		sources := cfg.Import.Enabled
		if importSources != "" {
			sources = splitFlagList(importSources)
		}
		if len(sources) == 0 {
			return eris.New("no sources enabled (--sources or import.enabled)")
		}

		store, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		client, err := fetch.NewHTTP(fetch.Options{
			Timeout:  cfg.Fetch.Timeout,
			ProxyURL: cfg.Fetch.ProxyURL,
		})
		if err != nil {
			return eris.Wrap(err, "create fetch client")
		}

		resolver := geocode.NewResolver(geocode.NewNominatim(geocode.NominatimOptions{
			BaseURL:   cfg.Geocode.BaseURL,
			UserAgent: cfg.Geocode.UserAgent,
			Referer:   cfg.Geocode.Referer,
			RPS:       cfg.Geocode.RPS,
		}))

		orch := importer.New(store, client, scrape.DefaultRegistry(), resolver, cfg)

		summary, err := orch.Run(ctx, keywords, location, sources)
		if err != nil {
			return eris.Wrap(err, "import run")
		}

		if importGeocodeMissing {
			updated, err := orch.GeocodeMissing(ctx, 500)
			if err != nil {
				return eris.Wrap(err, "geocode missing")
			}
			zap.L().Info("geocoding pass complete", zap.Int("updated", updated))
		}

		zap.L().Info("import complete",
			zap.Int("companies", summary.Imported),
			zap.Int("failed_sources", summary.Failed),
			zap.Any("by_source", summary.BySource),
		)
		return nil
	},
}

func splitFlagList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	importCmd.Flags().StringVar(&importKeywords, "keywords", "", "comma-separated keywords (default from config)")
	importCmd.Flags().StringVar(&importLocation, "location", "", "location to search in (default from config)")
	importCmd.Flags().StringVar(&importSources, "sources", "", "comma-separated sources to run (default from config)")
	importCmd.Flags().BoolVar(&importGeocodeMissing, "geocode-missing", false, "geocode addresses without coordinates after the import")
	rootCmd.AddCommand(importCmd)
}
