package fetch

import (
	"context"
	"fmt"

	"github.com/roach88/changewatch/internal/record"
)

// JSON fetches a JSON array of flat objects.
type JSON struct {
	loader *loader
}

// NewJSON creates a JSON fetcher for an http(s) URL, a file:// URL or a path.
func NewJSON(location string, opts ...Option) *JSON {
	return &JSON{loader: newLoader(location, opts...)}
}

// Fetch implements Fetcher. Nested values are rejected.
func (j *JSON) Fetch(ctx context.Context) ([]record.Record, error) {
	data, err := j.loader.load(ctx)
	if err != nil {
		return nil, err
	}

	records, err := record.UnmarshalRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", j.loader.location, err)
	}
	return records, nil
}
