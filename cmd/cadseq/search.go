package main

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/cadseq/pkg/pagination"
	"github.com/spf13/cobra"
)

var (
	searchFilter string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "List part-studio documents matching a query",
	Long: `Walks the paginated document search and prints the identifiers of the
matching part-studio documents in server order. Without a query every
part studio visible under the filter is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "document filter: my, public or a numeric filter (default from config)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of documents, negative for unlimited")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output identifiers as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	filter := searchFilter
	if filter == "" {
		filter = cfg.Harvest.Filter
	}

	s, err := newSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := pagination.NewSearcher(s.api).DocumentIDs(cmd.Context(), filter, query, searchLimit)
	if err != nil && len(ids) == 0 {
		return fmt.Errorf("search failed: %w", err)
	}
	if err != nil {
		cmd.PrintErrf("warning: %v\n", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(ids, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(ids) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for _, id := range ids {
		cmd.Println(id)
	}
	return nil
}
