package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/markdave123-py/virtual-teacher/internal/models"
)

// embedAndPersist consumes chunks, embeds them in batches, and writes to DB.
//
// docID:      current document ID.
// in:         chunk stream from streamChunk.
// batchSize:  number of chunks to embed/write per batch (limits memory).
func (i *DocumentIngestor) embedAndPersist(
	ctx context.Context,
	docID string,
	in <-chan chunk,
	batchSize int,
) (int, error) {
	batch := make([]chunk, 0, batchSize)
	stored := 0

	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			rows[k] = models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				Position:   items[k].Pos,
				TokenCount: items[k].TokenCnt,
			}
		}
		if err := i.db.InsertDocumentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		stored += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return stored, err
			}
			batch = batch[:0]
		}
	}
	if err := ctx.Err(); err != nil {
		return stored, err
	}
	if err := flush(batch); err != nil {
		return stored, err
	}
	return stored, nil
}
