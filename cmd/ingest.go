package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url>...",
	Short: "Ingest web pages into the corpus and rebuild the index",
	Long: `Fetches each URL, extracts its main text, and writes the chunks to the
web corpus. The index is rebuilt once after every page was ingested. The
first failing URL aborts the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, urls []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	color.Blue("\nIngesting %d page(s)\n", len(urls))
	bar := getProgressBar(len(urls), "📄 Fetching pages...")

	total := 0
	for _, u := range urls {
		chunks, err := a.ingest.Ingest(ctx, u)
		if err != nil {
			bar.Finish()
			return fmt.Errorf("%s: %w", u, err)
		}
		total += len(chunks)
		bar.Add(1)
	}
	bar.Finish()
	color.Green("\n✓ Wrote %d chunks\n", total)

	spinner := getSpinner("🔄 Rebuilding index...")
	docs, err := a.index.Rebuild(ctx)
	spinner.Finish()
	if err != nil {
		return err
	}
	color.Green("\n✓ Index rebuilt with %d texts\n", docs)
	return nil
}
