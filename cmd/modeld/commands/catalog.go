package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modeld/modeld/pkg/config"
	"github.com/modeld/modeld/pkg/metadata"
)

func newCatalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the model metadata catalog",
	}

	var (
		filterModel string
		filterTag   string
		filterText  string
		limit       int
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Metadata.Enabled {
				return fmt.Errorf("metadata catalog is disabled in configuration")
			}

			store, err := metadata.NewStore(metadata.Config{Path: cfg.Metadata.Path})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			records, err := store.Search(ctx, metadata.Filter{
				Model: filterModel,
				Tag:   filterTag,
				Text:  filterText,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODEL\tTAGS\tUPDATED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					rec.Name,
					rec.Model,
					strings.Join(rec.Tags, ","),
					rec.UpdatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}

	listCmd.Flags().StringVar(&filterModel, "model", "", "filter by variant name")
	listCmd.Flags().StringVar(&filterTag, "tag", "", "filter by tag")
	listCmd.Flags().StringVar(&filterText, "text", "", "filter by name/title/description substring")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")

	catalogCmd.AddCommand(listCmd)
	return catalogCmd
}
