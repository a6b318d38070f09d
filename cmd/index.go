package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"column-indexer/internal/aggregator"
	"column-indexer/internal/model"
	"column-indexer/internal/outline"
	"column-indexer/internal/page"

	"github.com/spf13/cobra"
)

var (
	indexFile    string
	indexFormat  string
	indexColumn  string
	indexNoWait  bool
	indexTimeout time.Duration
)

// columnReport is one column with its index and the current article's position.
type columnReport struct {
	model.Column `yaml:",inline"`
	Articles     model.ArticleIndex `json:"articles" yaml:"articles"`
	Complete     bool               `json:"complete" yaml:"complete"`
	Current      int                `json:"current" yaml:"current"`
	Default      bool               `json:"default" yaml:"default"`
}

type indexReport struct {
	URL     string         `json:"url" yaml:"url"`
	Columns []columnReport `json:"columns" yaml:"columns"`
	Outline outline.Forest `json:"outline" yaml:"outline"`
}

// indexCmd prints the article index of every column an article belongs to.
var indexCmd = &cobra.Command{
	Use:   "index <article-url>",
	Short: "Print the column indexes and outline of an article",
	Long: "Reads an article page (from the network, or --file), finds the columns it\n" +
		"belongs to, and prints each column's complete article index in canonical\n" +
		"order with the current article marked, followed by the article outline.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		pageURL := args[0]

		ctx, cancel := context.WithTimeout(cmd.Context(), indexTimeout)
		defer cancel()

		ix, err := newIndexer(ctx, cfg)
		if err != nil {
			return err
		}
		defer ix.Close()

		p, err := readPage(ctx, ix, pageURL, indexFile)
		if err != nil {
			return err
		}
		if len(p.Columns) == 0 {
			slog.Warn("index: article belongs to no column", "url", pageURL)
		}

		report := indexReport{URL: pageURL, Outline: outline.Build(p.Headings)}
		for _, col := range p.Columns {
			if indexColumn != "" && col.Key.ColumnID != indexColumn {
				continue
			}
			report.Columns = append(report.Columns, resolveColumn(ctx, ix.agg, col, pageURL, !indexNoWait))
		}
		markDefault(report.Columns)

		return render(cmd.OutOrStdout(), indexFormat, report, func(w io.Writer) error {
			return writeIndexText(w, report)
		})
	},
}

func readPage(ctx context.Context, ix *indexer, pageURL, file string) (page.Page, error) {
	var r io.ReadCloser
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return page.Page{}, err
		}
		r = f
	} else {
		body, err := ix.client.OpenArticle(ctx, pageURL)
		if err != nil {
			return page.Page{}, fmt.Errorf("fetch article: %w", err)
		}
		r = body
	}
	defer r.Close()
	return page.Extract(r, pageURL)
}

// resolveColumn returns the best index for col. With wait set it blocks for
// the refined index when one is on the way.
func resolveColumn(ctx context.Context, agg *aggregator.Aggregator, col model.Column, pageURL string, wait bool) columnReport {
	refined := make(chan model.ArticleIndex, 1)
	idx, pending := agg.Resolve(ctx, col.Key, col.ReportedCount, func(full model.ArticleIndex) {
		refined <- full
	})
	complete := !pending
	if pending && wait {
		select {
		case idx = <-refined:
			complete = true
		case <-ctx.Done():
			slog.Warn("index: gave up waiting for refinement", "column", col.Key.String(), "error", ctx.Err())
		}
	}
	return columnReport{Column: col, Articles: idx, Complete: complete, Current: idx.Locate(pageURL)}
}

// markDefault flags the first column that contains the current article, or
// the first column when none does.
func markDefault(cols []columnReport) {
	if len(cols) == 0 {
		return
	}
	for i := range cols {
		if cols[i].Current >= 0 {
			cols[i].Default = true
			return
		}
	}
	cols[0].Default = true
}

func writeIndexText(w io.Writer, r indexReport) error {
	for _, c := range r.Columns {
		tag := ""
		if c.Default {
			tag = " [default]"
		}
		if !c.Complete {
			tag += " [partial]"
		}
		if _, err := fmt.Fprintf(w, "%s (%s) %d/%d articles%s\n", c.Title, c.Key, len(c.Articles), c.ReportedCount, tag); err != nil {
			return err
		}
		for i, a := range c.Articles {
			marker := " "
			if i == c.Current {
				marker = ">"
			}
			if _, err := fmt.Fprintf(w, "%s %3d. %s  %s\n", marker, i+1, a.Title, a.URL); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	if len(r.Outline) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "outline:"); err != nil {
		return err
	}
	return writeTree(w, r.Outline, "")
}

func init() {
	indexCmd.Flags().StringVarP(&indexFile, "file", "f", "", "read the article HTML from a file instead of fetching it")
	indexCmd.Flags().StringVarP(&indexFormat, "format", "o", "text", "output format: text, json or yaml")
	indexCmd.Flags().StringVar(&indexColumn, "column", "", "only index the column with this id")
	indexCmd.Flags().BoolVar(&indexNoWait, "no-wait", false, "print the first page without waiting for the full index")
	indexCmd.Flags().DurationVar(&indexTimeout, "timeout", 2*time.Minute, "overall deadline")
	rootCmd.AddCommand(indexCmd)
}
