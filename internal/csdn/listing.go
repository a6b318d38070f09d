package csdn

import (
	"io"
	"slices"
	"strings"

	"column-indexer/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// ParseListing reads the article list out of a rendered column page. The page
// lists newest first; the result is reversed to oldest first. Entries without
// a link or a title are skipped.
func ParseListing(r io.Reader) ([]model.ArticleRef, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	var out []model.ArticleRef
	doc.Find(".column_article_list li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		if a.Length() == 0 {
			return
		}
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(a.Find(".title").First().Text())
		if title == "" {
			return
		}
		out = append(out, model.ArticleRef{URL: href, Title: title})
	})
	slices.Reverse(out)
	return out, nil
}
