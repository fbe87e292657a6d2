package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/virtual-teacher/internal/core"
)

// ErrEmptyText is returned when a document converts to no text at all.
var ErrEmptyText = errors.New("no text could be extracted")

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts data with docconv and returns the trimmed body.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyText
	}
	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

// ExtractText runs the conversion inside g and writes the non-empty lines of
// the result to the returned channel.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error) {
	if g == nil {
		return nil, errors.New("extract: nil errgroup")
	}
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		text, err := e.Extract(ctx, data, contentType)
		if err != nil {
			return err
		}
		return emitLines(ctx, text, out)
	})

	return out, nil
}

func emitLines(ctx context.Context, text string, out chan<- string) error {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
