package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		logs, err := store.ListImports(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "list imports")
		}
		if len(logs) == 0 {
			fmt.Println("no import runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTARTED\tSTATUS\tCOMPANIES\tMESSAGE")
		for _, l := range logs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				l.ID, l.Source, l.StartedAt.Format("2006-01-02 15:04:05"), l.Status, l.Companies, l.Message)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
