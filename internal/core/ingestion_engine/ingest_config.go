package ingestion_engine

import (
	"fmt"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
)

// IngestConfig tunes the streaming pipeline.
//
// TargetTokens:  approximate tokens per chunk (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:     how many chunks to embed/write in one batch (e.g., 32).
// QueueSize:     capacity of the pending-document queue.
type IngestConfig struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	QueueSize     int
}

// DefaultIngestConfig matches what the API server runs with.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		TargetTokens:  400,
		OverlapTokens: 40,
		BatchSize:     16,
		QueueSize:     64,
	}
}

func (c *IngestConfig) validate() error {
	if c.TargetTokens <= 0 {
		return fmt.Errorf("ingest: TargetTokens must be positive, got %d", c.TargetTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens {
		return fmt.Errorf("ingest: OverlapTokens must be in [0, %d), got %d", c.TargetTokens, c.OverlapTokens)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("ingest: BatchSize must be positive, got %d", c.BatchSize)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("ingest: QueueSize must be positive, got %d", c.QueueSize)
	}
	return nil
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for document and chunks.
// obj:       object storage the uploaded files live in.
// embedder:  embedding provider (Gemini).
// extractor: turns the raw upload into text fragments.
// cfg:       runtime tuning knobs for the pipeline.
// jobs:      in-memory queue of document IDs to process.
type DocumentIngestor struct {
	log       *logger.Logger
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       *IngestConfig
	jobs      chan string
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}
