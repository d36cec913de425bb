package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	// Empty disables the ingest catalog.
	PostgresDSN string

	// Empty disables rebuild requests and rebuilt notifications.
	NATSURL                string
	NATSRebuildSubject     string
	NATSRebuiltSubject     string
	NATSWorkerGroup        string
	RebuildTimeoutSeconds  int
	WatchDocs              bool
	WatchDebounceMillis    int
	IndexReloadPollSeconds int

	OllamaURL            string
	OllamaGenModel       string
	OllamaEmbedModel     string
	OllamaTimeoutSeconds int
	EmbedBatchSize       int

	DocsPath    string
	IndexPath   string
	MaxUploadMB int
	MaxPDFMB    int

	ChunkSize            int
	ChunkOverlap         int
	RAGTopK              int
	RAGMinFetchK         int
	RAGMMRFetchK         int
	RAGMMRLambda         float64
	RAGDistanceThreshold float64

	FollowUpMaxTokens int
	FollowUpMarkers   []string

	SessionHistoryMessages int
	SessionIdleTTLMinutes  int

	APIRateLimitRPS    float64
	APIRateLimitBurst  int
	APIMaxInFlight     int
	APIQueueWaitMillis int

	ResilienceRetryMaxAttempts   int
	ResilienceRetryInitialMillis int
	ResilienceRetryMaxMillis     int
	ResilienceBreakerEnabled     bool
	ResilienceBreakerOpenSeconds int

	WorkerMetricsPort string
}

// Load reads configuration from the environment. When CONFIG_FILE points at
// a YAML file, its keys (same names as the environment variables) fill in
// anything the environment leaves unset.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		NATSURL:                src.mustEnv("NATS_URL", ""),
		NATSRebuildSubject:     src.mustEnv("NATS_REBUILD_SUBJECT", "rag.index.rebuild_requested"),
		NATSRebuiltSubject:     src.mustEnv("NATS_REBUILT_SUBJECT", "rag.index.rebuilt"),
		NATSWorkerGroup:        src.mustEnv("NATS_WORKER_GROUP", "indexers"),
		RebuildTimeoutSeconds:  src.mustEnvInt("REBUILD_TIMEOUT_SECONDS", 1800),
		WatchDocs:              src.mustEnvBool("WATCH_DOCS", false),
		WatchDebounceMillis:    src.mustEnvInt("WATCH_DEBOUNCE_MS", 2000),
		IndexReloadPollSeconds: src.mustEnvInt("INDEX_RELOAD_POLL_SECONDS", 30),

		OllamaURL:            src.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:       src.mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel:     src.mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaTimeoutSeconds: src.mustEnvInt("OLLAMA_TIMEOUT_SECONDS", 120),
		EmbedBatchSize:       src.mustEnvInt("EMBED_BATCH_SIZE", 64),

		DocsPath:    src.mustEnv("DOCS_PATH", "./data/docs"),
		IndexPath:   src.mustEnv("INDEX_PATH", "./data/kb"),
		MaxUploadMB: src.mustEnvInt("MAX_UPLOAD_MB", 50),
		MaxPDFMB:    src.mustEnvInt("MAX_PDF_MB", 256),

		ChunkSize:            src.mustEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         src.mustEnvInt("CHUNK_OVERLAP", 150),
		RAGTopK:              src.mustEnvInt("RAG_TOP_K", 5),
		RAGMinFetchK:         src.mustEnvInt("RAG_MIN_FETCH_K", 10),
		RAGMMRFetchK:         src.mustEnvInt("RAG_MMR_FETCH_K", 50),
		RAGMMRLambda:         src.mustEnvFloat("RAG_MMR_LAMBDA", 0.5),
		RAGDistanceThreshold: src.mustEnvFloat("RAG_DISTANCE_THRESHOLD", 1.2),

		FollowUpMaxTokens: src.mustEnvInt("FOLLOWUP_MAX_TOKENS", 8),
		FollowUpMarkers:   src.mustEnvList("FOLLOWUP_MARKERS", []string{"it", "that", "this", "those", "them", "summarize", "examples", "what about", "and"}),

		SessionHistoryMessages: src.mustEnvInt("SESSION_HISTORY_MESSAGES", 6),
		SessionIdleTTLMinutes:  src.mustEnvInt("SESSION_IDLE_TTL_MINUTES", 60),

		APIRateLimitRPS:    src.mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:  src.mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:     src.mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 16),
		APIQueueWaitMillis: src.mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		ResilienceRetryMaxAttempts:   src.mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialMillis: src.mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 100),
		ResilienceRetryMaxMillis:     src.mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", 400),
		ResilienceBreakerEnabled:     src.mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerOpenSeconds: src.mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", 30),

		WorkerMetricsPort: src.mustEnv("WORKER_METRICS_PORT", "9090"),
	}, nil
}

func (c Config) OllamaTimeout() time.Duration {
	return time.Duration(c.OllamaTimeoutSeconds) * time.Second
}

func (c Config) RebuildTimeout() time.Duration {
	return time.Duration(c.RebuildTimeoutSeconds) * time.Second
}

func (c Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	if strings.TrimSpace(path) == "" {
		return source{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file: %w", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	file := make(map[string]string, len(parsed))
	for key, value := range parsed {
		switch v := value.(type) {
		case nil:
			continue
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			file[strings.ToUpper(key)] = strings.Join(items, ",")
		default:
			file[strings.ToUpper(key)] = fmt.Sprint(v)
		}
	}
	return source{file: file}, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) mustEnvList(key string, fallback []string) []string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
