package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvConfigFile      = "NLQ_CONFIG_FILE"
	EnvHTTPPort        = "NLQ_HTTP_PORT"
	EnvLLMBaseURL      = "LLM_BASE_URL"
	EnvLLMAPIKey       = "LLM_API_KEY"
	EnvLLMModel        = "LLM_MODEL"
	EnvEmbedBaseURL    = "EMBEDDING_BASE_URL"
	EnvEmbedAPIKey     = "EMBEDDING_API_KEY"
	EnvEmbedModel      = "EMBEDDING_MODEL"
	EnvDBDriver        = "NLQ_DB_DRIVER"
	EnvDBDSN           = "NLQ_DB_DSN"
	EnvIndexDir        = "NLQ_INDEX_DIR"
	EnvSemanticBackend = "NLQ_SEMANTIC_BACKEND"
	EnvQdrantHost      = "QDRANT_HOST"
	EnvQdrantPort      = "QDRANT_PORT"
	EnvSessionBackend  = "NLQ_SESSION_BACKEND"
	EnvRedisURL        = "REDIS_URL"
	EnvMaxIterations   = "NLQ_AGENT_MAX_ITERATIONS"
)

// 可选值
const (
	ResolverHeuristic = "heuristic"
	ResolverLLM       = "llm"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendQdrant = "qdrant"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
	Agent     AgentConfig     `yaml:"agent"`
	Chat      ChatConfig      `yaml:"chat"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
}

// LLMConfig 大模型配置（OpenAI 兼容接口）
type LLMConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 表示不限速
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	MaxInputChars int           `yaml:"max_input_chars"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DatabaseConfig 目标业务库配置（生成的 SQL 在此执行）
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	MaxRows      int           `yaml:"max_rows"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	ReadOnly     bool          `yaml:"read_only"`
}

// StorageConfig 本地存储配置（运行审计日志）
type StorageConfig struct {
	Path string `yaml:"path"` // 空表示 <data dir>/nlq.db
}

// IndexConfig 离线索引文件配置
type IndexConfig struct {
	Dir           string          `yaml:"dir"`
	Schema        CollectionFiles `yaml:"schema"`
	BusinessRules CollectionFiles `yaml:"business_rules"`
	SampleData    CollectionFiles `yaml:"sample_data"`
}

// CollectionFiles 单个集合的索引文件名（相对 Dir）
type CollectionFiles struct {
	Documents    string `yaml:"documents"`
	KeywordIndex string `yaml:"keyword_index"`
	Embeddings   string `yaml:"embeddings"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	KeywordWeight      float64             `yaml:"keyword_weight"`
	SemanticWeight     float64             `yaml:"semantic_weight"`
	TopK               int                 `yaml:"top_k"`
	KeywordK           int                 `yaml:"keyword_k"`
	SemanticK          int                 `yaml:"semantic_k"`
	SampleRowsPerTable int                 `yaml:"sample_rows_per_table"`
	SemanticBackend    string              `yaml:"semantic_backend"`
	Qdrant             QdrantConfig        `yaml:"qdrant"`
	TableHints         map[string][]string `yaml:"table_hints"`
}

// QdrantConfig Qdrant 连接配置
type QdrantConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	APIKey           string `yaml:"api_key"`
	UseTLS           bool   `yaml:"use_tls"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Backend  string        `yaml:"backend"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// AgentConfig 智能体配置
type AgentConfig struct {
	MaxIterations       int    `yaml:"max_iterations"`
	DetectClarification bool   `yaml:"detect_clarification"`
	Resolver            string `yaml:"resolver"`
	MaxContextTokens    int    `yaml:"max_context_tokens"`
	AnswerWithSummary   bool   `yaml:"answer_with_summary"`
	ClarificationTokens int    `yaml:"clarification_tokens"`
	GenerationMaxTokens int    `yaml:"generation_max_tokens"`
	ResolutionMaxTokens int    `yaml:"resolution_max_tokens"`
}

// ChatConfig 对话模式配置
type ChatConfig struct {
	Resolver string `yaml:"resolver"`
}

// NewConfig 创建配置（默认值 + 环境变量覆盖）
func NewConfig() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg
}

// Load 加载配置：.env → 默认值 → YAML 文件 → 环境变量
// path 为空时读取 NLQ_CONFIG_FILE，仍为空则跳过 YAML
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig 默认配置
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19980",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   2000,
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "text-embedding-3-small",
			MaxInputChars: 2048,
			Timeout:       30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "data/nuclear_power.db",
			MaxRows:      1000,
			QueryTimeout: 30 * time.Second,
			ReadOnly:     true,
		},
		Index: IndexConfig{
			Dir: "data/indices",
			Schema: CollectionFiles{
				KeywordIndex: "schema_bm25_index.json",
				Embeddings:   "schema_embeddings.json",
			},
			BusinessRules: CollectionFiles{
				Embeddings: "business_rules_embeddings.json",
			},
			SampleData: CollectionFiles{
				Documents:    "sample_data_docs.json",
				KeywordIndex: "sample_data_bm25_index.json",
			},
		},
		Retrieval: RetrievalConfig{
			KeywordWeight:      0.6,
			SemanticWeight:     0.4,
			TopK:               5,
			KeywordK:           10,
			SemanticK:          10,
			SampleRowsPerTable: 3,
			SemanticBackend:    BackendMemory,
			Qdrant: QdrantConfig{
				Host:             "localhost",
				Port:             6334,
				CollectionPrefix: "nlq_",
			},
			TableHints: map[string][]string{
				"nuclear_power_plants":             {"plant", "plants", "reactor", "reactors", "capacity", "construction", "operational"},
				"countries":                        {"country", "countries", "nation"},
				"nuclear_power_plant_status_types": {"status", "operating", "operational", "shutdown", "decommissioned"},
				"nuclear_reactor_types":            {"type", "types", "pwr", "bwr", "technology"},
			},
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
		},
		Agent: AgentConfig{
			MaxIterations:       3,
			DetectClarification: true,
			Resolver:            ResolverLLM,
			MaxContextTokens:    6000,
			AnswerWithSummary:   false,
			ClarificationTokens: 300,
			GenerationMaxTokens: 1000,
			ResolutionMaxTokens: 200,
		},
		Chat: ChatConfig{
			Resolver: ResolverHeuristic,
		},
	}
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	setString(&c.Server.HTTPPort, EnvHTTPPort)
	setString(&c.LLM.BaseURL, EnvLLMBaseURL)
	setString(&c.LLM.APIKey, EnvLLMAPIKey)
	setString(&c.LLM.Model, EnvLLMModel)
	setString(&c.Embedding.BaseURL, EnvEmbedBaseURL)
	setString(&c.Embedding.APIKey, EnvEmbedAPIKey)
	setString(&c.Embedding.Model, EnvEmbedModel)
	setString(&c.Database.Driver, EnvDBDriver)
	setString(&c.Database.DSN, EnvDBDSN)
	setString(&c.Index.Dir, EnvIndexDir)
	setString(&c.Retrieval.SemanticBackend, EnvSemanticBackend)
	setString(&c.Retrieval.Qdrant.Host, EnvQdrantHost)
	setInt(&c.Retrieval.Qdrant.Port, EnvQdrantPort)
	setString(&c.Session.Backend, EnvSessionBackend)
	setString(&c.Session.RedisURL, EnvRedisURL)
	setInt(&c.Agent.MaxIterations, EnvMaxIterations)

	// API Key 未单独配置时复用 LLM 的
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Retrieval.KeywordWeight < 0 || c.Retrieval.SemanticWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if c.Retrieval.KeywordWeight+c.Retrieval.SemanticWeight == 0 {
		return fmt.Errorf("retrieval weights must not both be zero")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	for name, r := range map[string]string{"agent.resolver": c.Agent.Resolver, "chat.resolver": c.Chat.Resolver} {
		if r != ResolverHeuristic && r != ResolverLLM {
			return fmt.Errorf("%s must be %q or %q, got %q", name, ResolverHeuristic, ResolverLLM, r)
		}
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for redis backend")
		}
	default:
		return fmt.Errorf("unsupported session backend %q", c.Session.Backend)
	}
	switch c.Retrieval.SemanticBackend {
	case BackendMemory, BackendQdrant:
	default:
		return fmt.Errorf("unsupported semantic backend %q", c.Retrieval.SemanticBackend)
	}
	return nil
}

// StoragePath 审计库路径
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(DataDir(), auditDBName)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewLLMConfig 创建大模型配置
func NewLLMConfig(cfg *Config) *LLMConfig {
	return &cfg.LLM
}

// NewEmbeddingConfig 创建向量化配置
func NewEmbeddingConfig(cfg *Config) *EmbeddingConfig {
	return &cfg.Embedding
}

// NewDatabaseConfig 创建目标库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewIndexConfig 创建索引配置
func NewIndexConfig(cfg *Config) *IndexConfig {
	return &cfg.Index
}

// NewRetrievalConfig 创建检索配置
func NewRetrievalConfig(cfg *Config) *RetrievalConfig {
	return &cfg.Retrieval
}

// NewSessionConfig 创建会话配置
func NewSessionConfig(cfg *Config) *SessionConfig {
	return &cfg.Session
}

// NewAgentConfig 创建智能体配置
func NewAgentConfig(cfg *Config) *AgentConfig {
	return &cfg.Agent
}

// NewChatConfig 创建对话配置
func NewChatConfig(cfg *Config) *ChatConfig {
	return &cfg.Chat
}
