package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/pagemap"
	"github.com/local/flipbook/internal/pdfdoc"
)

var pagesSkip int

var pagesCmd = &cobra.Command{
	Use:   "pages <ref>",
	Short: "Print the displayed page sequence of a document",
	Long: `Fetch a document (file path, http(s) URL or s3://bucket/key) and print
which source pages the viewer displays, in order.

Examples:
  flipbook pages myfile.pdf
  flipbook pages s3://docs/catalog.pdf --skip 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()
		skip := cfg.Viewer.SkipPage
		if cmd.Flags().Changed("skip") {
			skip = pagesSkip
		}

		doc, err := newFetcher(cfg).Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		total, err := pdfdoc.PageCount(doc.Bytes)
		if err != nil {
			return fmt.Errorf("count pages: %w", err)
		}
		m := pagemap.Build(total, skip)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"name":      doc.Ref.Name(),
			"digest":    pdfdoc.Digest(doc.Bytes),
			"pages":     total,
			"skip":      skip,
			"displayed": m.Len(),
			"fallback":  m.Fallback(),
			"sequence":  m.Pages(),
		})
	},
}

func init() {
	pagesCmd.Flags().IntVar(&pagesSkip, "skip", 0, "source page to exclude (overrides SKIP_PAGE, 0 disables)")
}
