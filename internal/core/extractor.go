package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor defines the interface for extracting text from uploaded documents.
type DocumentExtractor interface {
	// Extract returns the whole plain-text body of data.
	Extract(ctx context.Context, data []byte, contentType string) (string, error)

	// ExtractText runs extraction inside g and streams the non-empty lines of
	// the result. The channel is closed when extraction completes or fails.
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error)
}
