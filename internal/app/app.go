// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/virtual-teacher/internal/config"
	"github.com/markdave123-py/virtual-teacher/internal/core"
	db "github.com/markdave123-py/virtual-teacher/internal/core/database"
	"github.com/markdave123-py/virtual-teacher/internal/core/guard"
	"github.com/markdave123-py/virtual-teacher/internal/core/ingestion_engine"
	"github.com/markdave123-py/virtual-teacher/internal/core/llm"
	objectclient "github.com/markdave123-py/virtual-teacher/internal/core/object-client"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

type App struct {
	log *logger.Logger

	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	DocProcessor ingestion_engine.Ingestor
	Server       *Server

	embedder   *llm.GeminiEmbedder
	generator  *llm.GeminiLLM
	redisGuard *guard.RedisGuard
}

// NewApp connects every backing service and wires the HTTP server. ctx bounds
// the lifetime of the ingestion workers.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{log: log.With("component", "App")}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var err error
	a.DBClient, err = db.NewDatabaseClient(initCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.log.Info("database initialized and ready")

	a.embedder, err = llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.generator, err = llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the generator, %w", err)
	}

	var lock guard.Guard = guard.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		a.redisGuard, err = guard.NewRedisGuard(log, cfg.RedisAddr, cfg.GenerationLockTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		lock = a.redisGuard
		a.log.Info("using redis generation lock", "addr", cfg.RedisAddr)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)

	var storage core.ObjectClient
	if cfg.StorageEnabled() {
		a.ObjectClient, err = objectclient.NewS3Client(initCtx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		storage = a.ObjectClient
		a.log.Info("object client initialized and ready", "bucket", cfg.BucketName)

		ingestor, err := ingestion_engine.NewDocumentIngestor(log, a.DBClient, storage, a.embedder, extractor, ingestion_engine.DefaultIngestConfig())
		if err != nil {
			a.Close()
			return nil, err
		}
		ingestor.Start(ctx, cfg.IngestWorkers)
		a.DocProcessor = ingestor
	} else {
		a.log.Warn("object storage not configured; document upload disabled")
	}

	lessons, err := services.NewLessonService(log, services.LessonOptions{
		LLM:          a.generator,
		Embedder:     a.embedder,
		DB:           a.DBClient,
		Guard:        lock,
		MaxSourceLen: cfg.MaxPDFTextLength,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Server = NewServer(cfg, log, Services{
		Users:         services.NewUserService(a.DBClient),
		Documents:     services.NewDocumentService(a.DBClient, storage, extractor, cfg.BucketName),
		Conversations: services.NewConversationService(a.DBClient),
		Quizzes:       services.NewQuizService(a.DBClient),
		Lessons:       lessons,
		Ingestor:      a.DocProcessor,
	})
	return a, nil
}

// Close releases every client the app opened.
func (a *App) Close() error {
	var errs []error
	if a.redisGuard != nil {
		errs = append(errs, a.redisGuard.Close())
	}
	if a.generator != nil {
		errs = append(errs, a.generator.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.DBClient != nil {
		errs = append(errs, a.DBClient.Close())
	}
	return errors.Join(errs...)
}
