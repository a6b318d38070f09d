package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"column-indexer/internal/markdown"
	"column-indexer/internal/model"
	"column-indexer/internal/outline"
	"column-indexer/internal/page"

	"github.com/spf13/cobra"
)

var (
	outlineFormat string
	outlineActive string
)

type outlineReport struct {
	Source  string         `json:"source" yaml:"source"`
	Title   string         `json:"title,omitempty" yaml:"title,omitempty"`
	Outline outline.Forest `json:"outline" yaml:"outline"`
	Active  []string       `json:"active,omitempty" yaml:"active,omitempty"`
}

// outlineCmd prints the heading tree of a Markdown file, an HTML file, or an article URL.
var outlineCmd = &cobra.Command{
	Use:   "outline <file-or-url>",
	Short: "Print the heading tree of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		title, headings, err := loadHeadings(cmd.Context(), src)
		if err != nil {
			return err
		}
		report := outlineReport{Source: src, Title: title, Outline: outline.Build(headings)}
		if outlineActive != "" {
			report.Active = report.Outline.Path(outlineActive)
			if report.Active == nil {
				return fmt.Errorf("no heading with id %q", outlineActive)
			}
		}
		return render(cmd.OutOrStdout(), outlineFormat, report, func(w io.Writer) error {
			if title != "" {
				if _, err := fmt.Fprintln(w, title); err != nil {
					return err
				}
			}
			return writeTree(w, report.Outline, outlineActive)
		})
	},
}

func loadHeadings(ctx context.Context, src string) (string, []model.HeadingRecord, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		body, err := newSourceClient(GetConfig()).OpenArticle(ctx, src)
		if err != nil {
			return "", nil, fmt.Errorf("fetch article: %w", err)
		}
		defer body.Close()
		p, err := page.Extract(body, src)
		if err != nil {
			return "", nil, err
		}
		return "", p.Headings, nil
	}

	switch strings.ToLower(filepath.Ext(src)) {
	case ".md", ".markdown":
		doc, err := markdown.ParseFile(src)
		if err != nil {
			return "", nil, err
		}
		return doc.Title(), doc.Headings(), nil
	default:
		f, err := os.Open(src)
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		p, err := page.Extract(f, "")
		if err != nil {
			return "", nil, err
		}
		return "", p.Headings, nil
	}
}

func init() {
	outlineCmd.Flags().StringVarP(&outlineFormat, "format", "o", "text", "output format: text, json or yaml")
	outlineCmd.Flags().StringVar(&outlineActive, "active", "", "mark this heading id and print its path")
	rootCmd.AddCommand(outlineCmd)
}
