package ingestion_engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/virtual-teacher/internal/core"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/models"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(
	log *logger.Logger,
	db core.DbClient,
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	cfg *IngestConfig,
) (*DocumentIngestor, error) {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &DocumentIngestor{
		log:       log.With("component", "DocumentIngestor"),
		db:        db,
		obj:       obj,
		embedder:  emb,
		extractor: extractor,
		cfg:       cfg,
		jobs:      make(chan string, cfg.QueueSize),
	}, nil
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Debug("worker shutting down", "worker", w)
					return
				case docID := <-i.jobs:
					i.log.Info("processing document", "doc_id", docID, "worker", w)
					if err := i.ProcessOne(ctx, docID); err != nil {
						i.log.Error("document ingestion failed", "doc_id", docID, "err", err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. It blocks while the queue is
// full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// ProcessOne extracts, chunks, embeds and persists a single document, moving
// its status through processing to ready or failed.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	proctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	if err := i.db.UpdateDocumentStatus(proctx, docID, models.DocumentProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	stored, err := i.run(proctx, doc)
	if err != nil {
		i.markFailed(docID)
		return err
	}

	i.log.Info("document ingested", "doc_id", docID, "chunks", stored)
	return i.db.UpdateDocumentStatus(proctx, docID, models.DocumentReady)
}

func (i *DocumentIngestor) run(ctx context.Context, doc *models.Document) (int, error) {
	bucket, key := parseS3URL(doc.StorageURL)
	if bucket == "" || key == "" {
		return 0, fmt.Errorf("unrecognised storage url %q", doc.StorageURL)
	}

	data, err := i.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return 0, fmt.Errorf("get object: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// document -> fragments
	fragCh, err := i.extractor.ExtractText(gctx, g, data, doc.ContentType)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	// fragments -> chunks
	chunkCh := i.streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	// chunks -> embed + persist
	var stored int
	g.Go(func() error {
		n, err := i.embedAndPersist(gctx, doc.ID, chunkCh, i.cfg.BatchSize)
		stored = n
		return err
	})

	if err := g.Wait(); err != nil {
		return stored, err
	}
	return stored, nil
}

// markFailed uses a fresh context: the processing one may be what expired.
func (i *DocumentIngestor) markFailed(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.DocumentFailed); err != nil {
		i.log.Warn("mark document failed", "doc_id", docID, "err", err)
	}
}

// parseS3URL extracts the bucket and key from a virtual-hosted style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(raw string) (bucket, key string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := u.Hostname()
	if idx := strings.Index(host, ".s3."); idx > 0 {
		bucket = host[:idx]
	} else if dot := strings.IndexByte(host, '.'); dot > 0 {
		bucket = host[:dot]
	}
	key = strings.TrimPrefix(u.Path, "/")
	return bucket, key
}
