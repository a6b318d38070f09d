// Package markdown reads headings out of Markdown documents, so that local
// drafts can be outlined the same way as rendered article pages.
package markdown

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"column-indexer/internal/model"

	"gopkg.in/yaml.v3"
)

// Document represents a Markdown file with optional YAML frontmatter.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// ParseFile opens path and calls Parse.
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse splits frontmatter from body. Frontmatter is expected at the top of
// the input between two lines containing only "---".
func Parse(r io.Reader) (Document, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return Document{}, err
	}
	hasFM := string(peek) == "---"

	var fmBuf, bodyBuf strings.Builder
	if hasFM {
		if _, err := br.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return Document{}, err
		}
		for {
			l, err := br.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return Document{}, err
			}
			if strings.TrimSpace(l) == "---" {
				break
			}
			fmBuf.WriteString(l)
			if errors.Is(err, io.EOF) {
				break
			}
		}
	}
	if _, err := io.Copy(&bodyBuf, br); err != nil {
		return Document{}, err
	}

	d := Document{Frontmatter: map[string]any{}, Body: bodyBuf.String()}
	if hasFM {
		if err := yaml.Unmarshal([]byte(fmBuf.String()), &d.Frontmatter); err != nil {
			return Document{}, fmt.Errorf("frontmatter: %w", err)
		}
	}
	return d, nil
}

// Title returns the frontmatter title, or "".
func (d Document) Title() string {
	s, _ := d.Frontmatter["title"].(string)
	return strings.TrimSpace(s)
}

var atxRe = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)

// Headings returns the ATX headings of the body in document order. Lines in
// fenced code blocks are ignored. Ids are slugs of the heading text, made
// unique with a numeric suffix.
func (d Document) Headings() []model.HeadingRecord {
	var out []model.HeadingRecord
	used := map[string]int{}
	fence := ""
	sc := bufio.NewScanner(strings.NewReader(d.Body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
			continue
		}
		m := atxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if title == "" {
			continue
		}
		id := slug(title)
		if id == "" {
			id = fmt.Sprintf("heading-%d", len(out))
		}
		if n := used[id]; n > 0 {
			used[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			used[id] = 1
		}
		out = append(out, model.HeadingRecord{ID: id, Title: title, Level: len(m[1])})
	}
	return out
}

// slug lowercases s, keeps letters and digits (any script), and joins the
// words with hyphens.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
