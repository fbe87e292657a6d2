package ingestion_engine

import "context"

// Ingestor turns uploaded documents into embedded, searchable chunks.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, docID string) error
	ProcessOne(ctx context.Context, docID string) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
