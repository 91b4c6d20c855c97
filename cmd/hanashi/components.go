package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/hanashi/internal/chat"
	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/embedding"
	"github.com/hyperjump/hanashi/internal/indexer"
	"github.com/hyperjump/hanashi/internal/keyword"
	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/memory"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/retrieval"
	"github.com/hyperjump/hanashi/internal/storage"
	"github.com/hyperjump/hanashi/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.FilterIndex
	Model        llm.ChatModel
	Indexer      *indexer.Indexer
	Memory       *memory.Store
	Augmenter    *retrieval.Augmenter
	Chat         *chat.Orchestrator

	transcript io.WriteCloser
	logger     *zap.Logger
}

// Close saves the memory vector index and releases every resource.
func (c *Components) Close() {
	if c.VectorIndex != nil {
		if c.Config.Vector.Type == string(vector.IndexTypeMemory) {
			path := vector.IndexFile(c.Config.Storage.VectorIndexPath)
			if err := c.VectorIndex.Save(path); err != nil {
				c.logger.Warn("vector index save failed", zap.String("path", path), zap.Error(err))
			}
		}
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.transcript != nil {
		_ = c.transcript.Close()
	}
}

// options selects optional wiring per subcommand.
type options struct {
	// onResult receives every retrieval result (console document printer).
	onResult func(*models.RetrievalResult)
	// transcript enables the per-turn JSON transcript at cfg.CLI.TranscriptPath.
	transcript bool
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	e, err := embedding.New(&cfg.Embedding, logger)
	if err == nil {
		return e, nil
	}
	if cfg.Embedding.Provider != "onnx" {
		return nil, err
	}
	// Fall back to the deterministic embedder if the ONNX runtime or model is missing.
	logger.Warn("ONNX embedder unavailable, falling back to mock embeddings", zap.Error(err))
	fallback := cfg.Embedding
	fallback.Provider = "mock"
	return embedding.New(&fallback, logger)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, opts options) (*Components, error) {
	c := &Components{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	if c.Embedder, err = newEmbedder(cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorIndex, err := vector.NewVectorIndex(cfg.Vector.Type, c.Embedder.Dimensions(), cfg.Storage.VectorIndexPath, cfg.Vector.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = vectorIndex
	if cfg.Vector.Type == string(vector.IndexTypeMemory) {
		path := vector.IndexFile(cfg.Storage.VectorIndexPath)
		if loadErr := c.VectorIndex.Load(path); loadErr != nil {
			logger.Warn("vector index load skipped", zap.String("path", path), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized", zap.String("type", cfg.Vector.Type), zap.Int("size", c.VectorIndex.Size()))

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = keywordIndex

	if c.Model, err = llm.New(&cfg.Model, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	chunker, err := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return nil, err
	}
	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithNormalize(cfg.Chunking.NormalizeOrDefault()),
		indexer.WithExtensions(cfg.Ingest.Extensions),
	}
	if cfg.Ingest.EnrichKeywordsOrDefault() {
		enricher, err := indexer.NewKeywordEnricher(c.Model, cfg.Ingest.KeywordCount, logger)
		if err != nil {
			return nil, err
		}
		idxOpts = append(idxOpts, indexer.WithEnricher(enricher))
	}
	c.Indexer = indexer.NewIndexer(store, c.Embedder, c.VectorIndex, c.KeywordIndex, chunker, idxOpts...)

	c.Memory = memory.NewStore(cfg.Memory.WindowSize)
	c.Augmenter = retrieval.NewAugmenter(c.Embedder, c.VectorIndex, c.KeywordIndex, store,
		retrieval.OptionsFromConfig(&cfg.Retrieval), logger)

	var transcript io.Writer
	if opts.transcript && cfg.CLI.TranscriptPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CLI.TranscriptPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create transcript dir: %w", err)
		}
		f, err := os.OpenFile(cfg.CLI.TranscriptPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript: %w", err)
		}
		c.transcript = f
		transcript = f
	}
	stages := chat.DefaultStages(c.Memory, c.Augmenter, chat.NewLoggingStage(logger, transcript), opts.onResult)
	c.Chat = chat.NewOrchestrator(c.Model, stages,
		chat.WithLogger(logger),
		chat.WithBufferSize(cfg.Stream.BufferSize),
		chat.WithDefaults(llm.Options{
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.TemperatureOrDefault(),
			MaxTokens:   cfg.Model.MaxTokens,
		}))

	ok = true
	return c, nil
}
