package fetch

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/changewatch/internal/record"
)

// HTML extracts one record per container element of a static page. Each
// field is the trimmed text of the first element matching its selector
// inside the container, or null when nothing matches.
type HTML struct {
	loader    *loader
	container string
	fields    []fieldSelector
}

type fieldSelector struct {
	name     string
	selector string
}

// NewHTML creates an HTML fetcher. fields maps record field names to CSS
// selectors evaluated relative to each container.
func NewHTML(location, container string, fields map[string]string, opts ...Option) (*HTML, error) {
	if strings.TrimSpace(container) == "" {
		return nil, fmt.Errorf("container selector is empty")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no field selectors")
	}

	selectors := make([]fieldSelector, 0, len(fields))
	for name, sel := range fields {
		if strings.TrimSpace(sel) == "" {
			return nil, fmt.Errorf("field %q: selector is empty", name)
		}
		selectors = append(selectors, fieldSelector{name: name, selector: sel})
	}
	sort.Slice(selectors, func(i, j int) bool { return selectors[i].name < selectors[j].name })

	return &HTML{
		loader:    newLoader(location, opts...),
		container: container,
		fields:    selectors,
	}, nil
}

// Fetch implements Fetcher. Records whose every field is empty are dropped
// and identical records are kept once, in document order.
func (h *HTML) Fetch(ctx context.Context) ([]record.Record, error) {
	body, err := h.loader.load(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	return h.extract(doc), nil
}

func (h *HTML) extract(doc *goquery.Document) []record.Record {
	records := []record.Record{}
	seen := map[string]bool{}

	doc.Find(h.container).Each(func(_ int, s *goquery.Selection) {
		r := make(record.Record, len(h.fields))
		empty := true
		for _, f := range h.fields {
			match := s.Find(f.selector).First()
			if match.Length() == 0 {
				r[f.name] = record.Null{}
				continue
			}
			text := strings.TrimSpace(match.Text())
			if text != "" {
				empty = false
			}
			r[f.name] = record.String(text)
		}
		if empty {
			return
		}

		key := string(record.CanonicalForm(r))
		if seen[key] {
			return
		}
		seen[key] = true
		records = append(records, r)
	})

	return records
}
