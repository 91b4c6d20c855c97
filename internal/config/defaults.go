package config

// ApplyDefaults sets default values for any zero values in cfg.
// Pointer fields whose zero value is meaningful are resolved by their OrDefault methods instead.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/hanashi/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/hanashi/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/hanashi/data/indices/vector"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/hanashi/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "anthropic"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaultModelName(cfg.Model.Provider)
	}
	if cfg.Model.APIKeyEnv == "" {
		cfg.Model.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 1024
	}
	if cfg.Model.TimeoutSeconds == 0 {
		cfg.Model.TimeoutSeconds = 120
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Ingest.KeywordCount == 0 {
		cfg.Ingest.KeywordCount = 4
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}
	}
	if cfg.Memory.WindowSize == 0 {
		cfg.Memory.WindowSize = 10
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.OnError == "" {
		cfg.Retrieval.OnError = OnErrorFail
	}
	if cfg.Stream.BufferSize == 0 {
		cfg.Stream.BufferSize = 16
	}
}

func defaultModelName(provider string) string {
	switch provider {
	case "ollama":
		return "llama3.2"
	case "mock":
		return "mock"
	default:
		return "claude-sonnet-4-5"
	}
}
