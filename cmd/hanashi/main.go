// Package main is the Hanashi CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/hanashi/internal/cli"
	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/indexer"
	"github.com/hyperjump/hanashi/internal/server"
	"github.com/hyperjump/hanashi/internal/storage"
	"github.com/hyperjump/hanashi/internal/watcher"
	"github.com/hyperjump/hanashi/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/hanashi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "chat":
		runChat()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("hanashi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags registers -config and -debug on fs.
func commonFlags(fs *flag.FlagSet) (configPath *string, debug *bool) {
	configPath = fs.String("config", defaultConfigPath, "config file path")
	debug = fs.Bool("debug", false, "enable debug logging")
	return configPath, debug
}

// setup loads the config and builds the logger. console selects the logger
// that stays quiet on the terminal.
func setup(configPath string, debugFlag, console bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debug := cfg.Debug || debugFlag
	var logger *zap.Logger
	if console {
		logger, err = utils.NewConsoleLogger(debug)
	} else {
		logger, err = utils.NewLogger(debug)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger
}

// prepare restores missing vectors and runs the startup ingestion when configured.
func prepare(ctx context.Context, c *Components, logger *zap.Logger) {
	chunks, err := c.Storage.CountChunks(ctx)
	if err == nil && chunks > 0 && c.VectorIndex.Size() == 0 {
		logger.Warn("vector index is empty while storage has chunks, rebuilding", zap.Int64("chunks", chunks))
		if _, err := c.Indexer.Rebuild(ctx); err != nil {
			logger.Error("vector index rebuild failed", zap.Error(err))
		}
	}
	pattern := c.Config.Ingest.DocumentLocationPattern
	if !c.Config.Ingest.InitOnStart || pattern == "" {
		return
	}
	if _, err := c.Indexer.IndexPattern(ctx, pattern); err != nil {
		logger.Error("startup ingestion failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func startWatcher(ctx context.Context, c *Components, logger *zap.Logger) *watcher.Watcher {
	if !c.Config.Ingest.Watch || c.Config.Ingest.DocumentLocationPattern == "" {
		return nil
	}
	w := watcher.New(watcher.RootsFor(c.Config.Ingest.DocumentLocationPattern), c.Indexer, watcher.WithLogger(logger))
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start watcher", zap.Error(err))
		return nil
	}
	return w
}

// argsReorder moves trailing flags ahead of positional arguments so that
// "hanashi ingest ./docs -dump" parses like "hanashi ingest -dump ./docs".
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath, debug := commonFlags(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, options{transcript: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	prepare(ctx, components, logger)
	if w := startWatcher(ctx, components, logger); w != nil {
		defer w.Stop()
	}

	srv := server.NewServer(server.Services{
		Chat:     components.Chat,
		Indexer:  components.Indexer,
		Storage:  components.Storage,
		Keywords: components.KeywordIndex,
		Vectors:  components.VectorIndex,
		Memory:   components.Memory,
	}, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Stop(shutdownCtx)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath, debug := commonFlags(fs)
	filter := fs.String("filter", "", "filter expression (overrides cli.filter_expression)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug, true)
	defer logger.Sync()
	if *filter != "" {
		cfg.CLI.FilterExpression = *filter
	}

	opts := options{transcript: true}
	if cfg.CLI.PrintDocumentsOrDefault() {
		opts.onResult = cli.DocumentPrinter(os.Stdout)
	}
	components, err := initializeComponents(cfg, logger, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	prepare(ctx, components, logger)

	console := cli.NewConsole(components.Chat, os.Stdin, os.Stdout, cfg.CLI.FilterExpression)
	if err := console.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Console failed: %v\n", err)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath, debug := commonFlags(fs)
	dump := fs.Bool("dump", false, "print the produced chunks as JSON instead of writing them")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	pattern := cfg.Ingest.DocumentLocationPattern
	if fs.NArg() > 0 {
		pattern = fs.Arg(0)
	}
	if pattern == "" {
		fmt.Println("Usage: hanashi ingest [flags] <pattern>  (or set ingest.document_location_pattern)")
		os.Exit(1)
	}

	components, err := initializeComponents(cfg, logger, options{})
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *dump {
		if err := dumpChunks(ctx, os.Stdout, components, pattern); err != nil {
			fmt.Fprintf(os.Stderr, "Dump failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	rep, err := components.Indexer.IndexPattern(ctx, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d file(s), skipped %d unchanged, %d chunk(s)\n", rep.Indexed, rep.Skipped, rep.Chunks)
	for path, msg := range rep.Failed {
		fmt.Printf("  failed: %s: %s\n", path, msg)
	}
}

// dumpChunks reads and transforms every matched document and writes the chunks
// as JSON without touching storage or the indices.
func dumpChunks(ctx context.Context, w io.Writer, c *Components, pattern string) error {
	docs, err := indexer.Read(nil, pattern, c.Config.Ingest.Extensions, func(path string, err error) {
		fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		chunks, err := c.Indexer.Transform(ctx, doc)
		if err != nil {
			return err
		}
		if err := indexer.WriteJSON(w, chunks); err != nil {
			return err
		}
	}
	return nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath, debug := commonFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: hanashi delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, logger := setup(*configPath, *debug, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, options{})
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Documents       int64                  `json:"documents"`
	Chunks          int64                  `json:"chunks"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath, debug := commonFlags(fs)
	serverURL := fs.String("server", "", "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, logger := setup(*configPath, *debug, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status, err = directStatus(context.Background(), components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := writeStatus(os.Stdout, &status, *outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func directStatus(ctx context.Context, c *Components) (statusResponse, error) {
	docCount, err := c.Storage.CountDocuments(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count documents: %w", err)
	}
	chunkCount, err := c.Storage.CountChunks(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count chunks: %w", err)
	}
	cfg := c.Config
	status := statusResponse{
		Documents:       docCount,
		Chunks:          chunkCount,
		VectorIndexSize: c.VectorIndex.Size(),
		Config: map[string]interface{}{
			"vector_index_type": cfg.Vector.Type,
			"model_provider":    cfg.Model.Provider,
			"model_name":        cfg.Model.Name,
			"chunk_size":        cfg.Chunking.ChunkSize,
			"chunk_overlap":     cfg.Chunking.OverlapOrDefault(),
			"database_path":     cfg.Storage.DatabasePath,
		},
	}
	_, total, err := storage.DiskUsage(map[string]string{
		"database":     cfg.Storage.DatabasePath,
		"bleve":        cfg.Storage.BleveIndexPath,
		"vector_index": cfg.Storage.VectorIndexPath,
	})
	if err == nil {
		status.DiskUsageBytes = &total
	}
	return status, nil
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		fmt.Fprintf(w, "documents:          %d\n", status.Documents)
		fmt.Fprintf(w, "chunks:             %d\n", status.Chunks)
		fmt.Fprintf(w, "vector_index_size:  %d\n", status.VectorIndexSize)
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			for _, key := range []string{"vector_index_type", "model_provider", "model_name", "chunk_size", "chunk_overlap", "database_path"} {
				if v, ok := status.Config[key]; ok {
					fmt.Fprintf(w, "%-19s %v\n", key+":", v)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`hanashi - Retrieval-augmented chat over your documents

Usage:
  hanashi serve [flags]             Start the HTTP server
  hanashi chat [flags]              Interactive console chat (conversation "cli")
  hanashi ingest [flags] [pattern]  Ingest documents matching a location pattern
  hanashi delete [flags] <id>       Delete a document
  hanashi status [flags]            Show storage and index status
  hanashi version                   Show version
  hanashi help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/hanashi/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Chat Flags:
  --filter string    Filter expression, e.g. "source:handbook.pdf"

Ingest Flags:
  --dump             Print the produced chunks as JSON instead of writing them

Status Flags:
  --server string    Server URL; empty reads storage directly
  --output string    Output format: text or json (default: text)

Examples:
  hanashi serve
  hanashi ingest "file:./docs/**/*.md"
  hanashi ingest --dump ./docs/handbook.pdf
  hanashi chat --filter "+excerpt_keywords:refund"
  hanashi status --output json`)
}
