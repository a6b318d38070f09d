package model

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// PageSize is the fixed number of records requested per listing page.
const PageSize = 100

// ArticleRef is one article of a column.
type ArticleRef struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
}

// ColumnKey identifies a remote column listing.
type ColumnKey struct {
	ColumnID string `json:"column_id" yaml:"column_id"`
	Owner    string `json:"owner" yaml:"owner"`
}

// CacheKey returns the key the column's index is stored under.
func (k ColumnKey) CacheKey() string {
	return fmt.Sprintf("column:%s:%s", k.Owner, k.ColumnID)
}

func (k ColumnKey) String() string {
	return k.Owner + "/" + k.ColumnID
}

// PageRequest is a single remote listing call.
type PageRequest struct {
	Key      ColumnKey
	Page     int
	PageSize int
}

// ArticleIndex is a column's article list in canonical order.
type ArticleIndex []ArticleRef

// PageCount returns how many pages must be requested to cover reportedCount records.
func PageCount(reportedCount int) int {
	if reportedCount <= 0 {
		return 1
	}
	return (reportedCount + PageSize - 1) / PageSize
}

// ArticleID extracts the numeric identifier from the last path segment of an
// article URL. Query strings and fragments are ignored.
func ArticleID(rawURL string) (int64, bool) {
	seg := LastSegment(rawURL)
	if seg == "" {
		return 0, false
	}
	seg = strings.TrimSuffix(seg, ".html")
	if seg == "" || strings.TrimLeft(seg, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// LastSegment returns the trailing path segment of a URL without query or fragment.
func LastSegment(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// SortArticles returns a copy of refs in canonical order: ascending by URL id,
// unparseable ids last. Equal keys keep their input order.
func SortArticles(refs []ArticleRef) ArticleIndex {
	out := make(ArticleIndex, len(refs))
	copy(out, refs)
	slices.SortStableFunc(out, compareArticles)
	return out
}

func compareArticles(a, b ArticleRef) int {
	ai, aok := ArticleID(a.URL)
	bi, bok := ArticleID(b.URL)
	switch {
	case aok && bok:
		if ai < bi {
			return -1
		}
		if ai > bi {
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	default:
		return 0
	}
}

// Column is a column group advertised on an article page.
type Column struct {
	Title         string    `json:"title" yaml:"title"`
	URL           string    `json:"url" yaml:"url"`
	Key           ColumnKey `json:"key" yaml:"key"`
	ReportedCount int       `json:"reported_count" yaml:"reported_count"`
}

var columnURLRe = regexp.MustCompile(`blog\.csdn\.net/([^/]+)/category_(\d+)\.html`)

// ParseColumnURL extracts the owner and column id from a column URL such as
// https://blog.csdn.net/someone/category_12345.html.
func ParseColumnURL(rawURL string) (ColumnKey, bool) {
	m := columnURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ColumnKey{}, false
	}
	return ColumnKey{Owner: m[1], ColumnID: m[2]}, true
}

var countRe = regexp.MustCompile(`\d[\d,]*`)

// ParseCount reads the first integer in a noisy label like "1,024 篇文章".
// It returns 0 when no number is present.
func ParseCount(s string) int {
	m := countRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// Locate returns the position of the article whose trailing URL segment matches
// currentURL, or -1.
func (idx ArticleIndex) Locate(currentURL string) int {
	want := LastSegment(currentURL)
	if want == "" {
		return -1
	}
	for i, a := range idx {
		if LastSegment(a.URL) == want {
			return i
		}
	}
	return -1
}
