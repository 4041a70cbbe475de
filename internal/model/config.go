package model

// Config holds the complete factloop configuration
type Config struct {
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Refine       RefineConfig      `yaml:"refine" mapstructure:"refine"`
	CheckPoints  CheckPointConfig  `yaml:"check_points" mapstructure:"check_points"`
	Retrieval    RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
	Archive      ArchiveConfig     `yaml:"archive" mapstructure:"archive"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
}

// LLMConfig configures the language model oracle
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds per oracle call
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Per-stage models; empty falls back to the provider default
	DraftModel      string `yaml:"draft_model" mapstructure:"draft_model"`
	EvaluateModel   string `yaml:"evaluate_model" mapstructure:"evaluate_model"`
	SynthesizeModel string `yaml:"synthesize_model" mapstructure:"synthesize_model"`

	Stream bool `yaml:"stream" mapstructure:"stream"` // Stream draft and report deltas to observers
}

// Termination policies
const (
	PolicyThreshold = "threshold" // Finalize as soon as the average reaches Threshold
	PolicyStrict    = "strict"    // Only round exhaustion or an explicit stop finalizes
)

// RefineConfig bounds the draft/evaluate loop
type RefineConfig struct {
	MaxRounds           int     `yaml:"max_rounds" mapstructure:"max_rounds"`
	Policy              string  `yaml:"policy" mapstructure:"policy"`
	Threshold           float64 `yaml:"threshold" mapstructure:"threshold"`
	DuplicateSimilarity float64 `yaml:"duplicate_similarity" mapstructure:"duplicate_similarity"`
	DraftMinChars       int     `yaml:"draft_min_chars" mapstructure:"draft_min_chars"`
	DraftMaxChars       int     `yaml:"draft_max_chars" mapstructure:"draft_max_chars"`
	Language            string  `yaml:"language" mapstructure:"language"` // Output language directive for the oracle
}

// CheckPointConfig configures the remote check-point identifier
type CheckPointConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	SourceLabel string `yaml:"source_label" mapstructure:"source_label"` // Default media name
	Timeout     int    `yaml:"timeout" mapstructure:"timeout"`           // seconds
}

// RetrievalConfig selects and configures evidence backends
type RetrievalConfig struct {
	Backends     []string        `yaml:"backends" mapstructure:"backends"` // elastic, tfc, local; queried in order
	MaxRecords   int             `yaml:"max_records" mapstructure:"max_records"`
	MaxBodyChars int             `yaml:"max_body_chars" mapstructure:"max_body_chars"`
	Elastic      ElasticConfig   `yaml:"elastic" mapstructure:"elastic"`
	Embedding    EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	TFC          TFCConfig       `yaml:"tfc" mapstructure:"tfc"`
	Local        LocalConfig     `yaml:"local" mapstructure:"local"`
}

// ElasticConfig configures vector search over the wire and fact-check indices
type ElasticConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	Username       string `yaml:"username,omitempty" mapstructure:"username"`
	Password       string `yaml:"password,omitempty" mapstructure:"password"`
	WireIndex      string `yaml:"wire_index" mapstructure:"wire_index"`
	ReportIndex    string `yaml:"report_index" mapstructure:"report_index"`
	EmbeddingField string `yaml:"embedding_field" mapstructure:"embedding_field"`
	RecallSize     int    `yaml:"recall_size" mapstructure:"recall_size"`
	WireURLPattern string `yaml:"wire_url_pattern" mapstructure:"wire_url_pattern"` // %s is replaced by the article pid
}

// EmbeddingConfig selects the embedding service used to vectorize claims
type EmbeddingConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // openai, gemini
	Model    string `yaml:"model" mapstructure:"model"`
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// TFCConfig configures the fact-check center text search API
type TFCConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Key      string `yaml:"key,omitempty" mapstructure:"key"`
	Project  string `yaml:"project" mapstructure:"project"`
	Category string `yaml:"category" mapstructure:"category"`
	Count    int    `yaml:"count" mapstructure:"count"`
}

// LocalConfig configures the offline evidence corpus
type LocalConfig struct {
	CorpusPath  string `yaml:"corpus_path" mapstructure:"corpus_path"`   // JSON file of evidence records
	PersistPath string `yaml:"persist_path" mapstructure:"persist_path"` // Optional on-disk vector store
}

// HTTPConfig configures outbound HTTP clients
type HTTPConfig struct {
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the retrieval and check-point cache
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	TTL     int    `yaml:"ttl" mapstructure:"ttl"` // seconds
}

// RateLimitConfig throttles outbound requests per host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	// Hosts overrides the rate for individual hosts (host[:port] -> requests per second)
	Hosts map[string]float64 `yaml:"hosts,omitempty" mapstructure:"hosts"`
}

// ConcurrencyConfig bounds batch fan-out
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP/WebSocket surface
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	MaxSessions int      `yaml:"max_sessions" mapstructure:"max_sessions"`
	SessionTTL  int      `yaml:"session_ttl" mapstructure:"session_ttl"` // seconds
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ArchiveConfig configures the store of finished sessions
type ArchiveConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, pgx; empty disables archiving
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // markdown, json
	Color  bool   `yaml:"color" mapstructure:"color"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:        "openai",
			Timeout:         60,
			MaxTokens:       1500,
			DraftModel:      "gpt-4o-mini",
			EvaluateModel:   "gpt-4o",
			SynthesizeModel: "gpt-4o",
			Stream:          true,
		},
		Refine: RefineConfig{
			MaxRounds:           3,
			Policy:              PolicyThreshold,
			Threshold:           4.5,
			DuplicateSimilarity: 0.8,
			DraftMinChars:       100,
			DraftMaxChars:       300,
			Language:            "Traditional Chinese (Taiwan)",
		},
		CheckPoints: CheckPointConfig{
			SourceLabel: "Chiming",
			Timeout:     30,
		},
		Retrieval: RetrievalConfig{
			Backends:     []string{"elastic"},
			MaxRecords:   20,
			MaxBodyChars: 2000,
			Elastic: ElasticConfig{
				WireIndex:      "lab_mainsite_search",
				ReportIndex:    "lab_tfc_search_test",
				EmbeddingField: "embeddings",
				RecallSize:     10,
				WireURLPattern: "https://www.cna.com.tw/news/aall/%s.aspx",
			},
			Embedding: EmbeddingConfig{
				Provider: "openai",
				Model:    "text-embedding-3-large",
			},
			TFC: TFCConfig{
				Project:  "FactCheck",
				Category: "tfc",
				Count:    5,
			},
		},
		HTTP: HTTPConfig{
			Timeout:   30,
			UserAgent: "factloop/0.1",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".factloop/cache",
			TTL:     3600,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2.0,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxSessions: 256,
			SessionTTL:  1800,
		},
		Archive: ArchiveConfig{
			Driver: "sqlite",
			DSN:    ".factloop/history.db",
		},
		Output: OutputConfig{
			Format: "markdown",
			Color:  true,
		},
	}
}
