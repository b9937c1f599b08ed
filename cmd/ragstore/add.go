package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/ingest"
	"github.com/fyrsmithlabs/ragstore/internal/ledger"
)

var addAsText bool

func init() {
	addCmd.Flags().BoolVar(&addAsText, "text", false, "treat arguments as literal text instead of file paths")
}

var addCmd = &cobra.Command{
	Use:   "add [source...]",
	Short: "Ingest files or text into the vector store",
	Long: `Chunk, embed, and store one or more sources. Sources already present
(by content hash) are skipped without re-embedding.

Examples:
  # Ingest files
  ragstore add docs/intro.md docs/faq.md

  # Ingest literal text
  ragstore add --text "Paris is the capital of France."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var led *ledger.Ledger
	if a.cfg.Ingest.LedgerPath != "" {
		led, err = ledger.Open(a.cfg.Ingest.LedgerPath, a.cfg.Ingest.PipelineID)
		if err != nil {
			return fmt.Errorf("opening ingest ledger: %w", err)
		}
		defer led.Close()
	}

	chunker, err := ingest.NewRecursiveChunker(a.cfg.Ingest.ChunkSize, a.cfg.Ingest.ChunkOverlap)
	if err != nil {
		return err
	}

	pipeline, err := ingest.New(a.store, ingest.Options{
		Chunker: chunker,
		Ledger:  led,
		Logger:  a.logger,
		Workers: a.cfg.Ingest.Workers,
	})
	if err != nil {
		return err
	}

	sourceType := ingest.SourceFile
	if addAsText {
		sourceType = ingest.SourceText
	}
	sources := make([]ingest.Source, len(args))
	for i, arg := range args {
		sources[i] = ingest.Source{Type: sourceType, Value: arg}
	}

	results, err := pipeline.Ingest(ctx, sources)
	if err != nil {
		return err
	}

	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			a.logger.Error("source failed", zap.String("source", res.Source.Value), zap.Error(res.Err))
			fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", res.Source.Value, res.Err)
			continue
		}
		fmt.Printf("%s: %d chunk(s) added, %d skipped\n", res.Source.Value, res.Added, res.Skipped)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d source(s) failed", failures, len(results))
	}
	return nil
}
