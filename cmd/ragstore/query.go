package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
)

var (
	queryTopK      int
	queryCitations bool
	queryWhere     []string
)

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", retrieval.DefaultTopK, "number of results to return")
	queryCmd.Flags().BoolVar(&queryCitations, "citations", false, "print source url and doc id with each result")
	queryCmd.Flags().StringSliceVarP(&queryWhere, "where", "w", nil, "metadata filter as key=value (repeatable, ANDed)")
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a similarity query",
	Long: `Embed the query text and return the most similar stored chunks.

Examples:
  # Plain contexts
  ragstore query "what is the capital of france"

  # With citations and a metadata filter
  ragstore query --citations -w app_id=demo "capital of france"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func parseWhere(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", pair)
		}
		where[key] = value
	}
	return where, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	where, err := parseWhere(queryWhere)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	retriever, err := retrieval.New(a.store, a.logger)
	if err != nil {
		return err
	}

	q := retrieval.Query{Text: args[0], TopK: queryTopK, Where: where}

	if queryCitations {
		citations, err := retriever.Citations(ctx, q)
		if err != nil {
			return err
		}
		for i, c := range citations {
			fmt.Printf("%d. %s\n   source: %s (doc %s)\n", i+1, c.Context, c.SourceID, c.DocID)
		}
		return nil
	}

	contexts, err := retriever.Contexts(ctx, q)
	if err != nil {
		return err
	}
	for i, text := range contexts {
		fmt.Printf("%d. %s\n", i+1, text)
	}
	return nil
}
