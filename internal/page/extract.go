// Package page reads the inputs the indexer needs out of a rendered CSDN
// article page: the columns the article belongs to and its headings.
package page

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"column-indexer/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Page is what Extract found on an article page.
type Page struct {
	URL      string                `json:"url" yaml:"url"`
	Columns  []model.Column        `json:"columns" yaml:"columns"`
	Headings []model.HeadingRecord `json:"headings" yaml:"headings"`
}

// containers are tried in order to find the article body.
var containers = []string{"#content_views", "#article_content", "article", "main", "body"}

// Extract parses an article page. pageURL resolves relative column links and
// may be empty.
func Extract(r io.Reader, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, err
	}
	base, _ := url.Parse(pageURL)
	return Page{
		URL:      pageURL,
		Columns:  columns(doc, base),
		Headings: headings(doc),
	}, nil
}

func columns(doc *goquery.Document, base *url.URL) []model.Column {
	var out []model.Column
	doc.Find("#blogColumnPayAdvert .column-group-item").Each(func(_ int, item *goquery.Selection) {
		link := item.Find(".item-target").First()
		href, _ := link.Attr("href")
		href = resolve(base, strings.TrimSpace(href))
		key, ok := model.ParseColumnURL(href)
		if !ok {
			slog.Warn("page: unparseable column url", "url", href)
			return
		}
		title, _ := link.Attr("title")
		title = strings.TrimSpace(title)
		if title == "" {
			title = collapse(link.Text())
		}
		count := 0
		item.Find(".item-m span").Each(func(_ int, s *goquery.Selection) {
			if t := s.Text(); strings.Contains(t, "篇文章") {
				count = model.ParseCount(t)
			}
		})
		out = append(out, model.Column{Title: title, URL: href, Key: key, ReportedCount: count})
	})
	return out
}

func headings(doc *goquery.Document) []model.HeadingRecord {
	scope := doc.Selection
	for _, sel := range containers {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			scope = s
			break
		}
	}
	var out []model.HeadingRecord
	used := map[string]int{}
	scope.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		title := collapse(s.Text())
		if title == "" {
			return
		}
		level := int(goquery.NodeName(s)[1] - '0')
		id, _ := s.Attr("id")
		id = strings.TrimSpace(id)
		if id == "" {
			id = fmt.Sprintf("heading-%d", i)
		}
		if n := used[id]; n > 0 {
			used[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			used[id] = 1
		}
		out = append(out, model.HeadingRecord{ID: id, Title: title, Level: level})
	})
	return out
}

func resolve(base *url.URL, href string) string {
	if base == nil || href == "" {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
