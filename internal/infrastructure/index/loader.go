package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 加载错误
var (
	ErrIndexNotFound     = errors.New("index file not found")
	ErrCountMismatch     = errors.New("index document count mismatch")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrModelMismatch     = errors.New("embedding model mismatch")
	ErrEmptyCollection   = errors.New("collection has no documents")
)

// 集合名
const (
	CollectionSchema        = "schema"
	CollectionBusinessRules = "business_rules"
	CollectionSampleData    = "sample_data"
)

// keywordIndexFile 分词语料文件
type keywordIndexFile struct {
	Tokens [][]string `json:"tokens"`
}

// embeddingFile 文档与向量文件
type embeddingFile struct {
	Model      string            `json:"model"`
	Dimension  int               `json:"dimension"`
	Documents  []domain.Document `json:"documents"`
	Embeddings [][]float32       `json:"embeddings"`
}

// Bundle 启动时加载的全部集合
type Bundle struct {
	Schema        *domain.Collection
	BusinessRules *domain.Collection
	SampleData    *domain.Collection
}

// Loader 离线索引加载器
type Loader struct {
	cfg        *config.IndexConfig
	embedModel string
	logger     *slog.Logger
}

// NewLoader 创建加载器
func NewLoader(cfg *config.IndexConfig, embCfg *config.EmbeddingConfig) *Loader {
	return &Loader{
		cfg:        cfg,
		embedModel: embCfg.Model,
		logger:     log.NewModuleLogger("index", "loader"),
	}
}

// Load 加载全部集合，任何一个失败即返回错误
func (l *Loader) Load() (*Bundle, error) {
	schema, err := l.LoadCollection(CollectionSchema, l.cfg.Schema)
	if err != nil {
		return nil, err
	}
	rules, err := l.LoadCollection(CollectionBusinessRules, l.cfg.BusinessRules)
	if err != nil {
		return nil, err
	}
	samples, err := l.LoadCollection(CollectionSampleData, l.cfg.SampleData)
	if err != nil {
		return nil, err
	}
	return &Bundle{Schema: schema, BusinessRules: rules, SampleData: samples}, nil
}

// LoadCollection 加载单个集合
// 文档来自 Documents 文件，未配置时取 Embeddings 文件中的文档
func (l *Loader) LoadCollection(name string, files config.CollectionFiles) (*domain.Collection, error) {
	coll := &domain.Collection{Name: name}

	if files.Documents != "" {
		if err := l.readJSON(files.Documents, &coll.Documents); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
	}

	if files.Embeddings != "" {
		var ef embeddingFile
		if err := l.readJSON(files.Embeddings, &ef); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		if err := l.checkEmbeddings(name, &ef); err != nil {
			return nil, err
		}
		if coll.Documents == nil {
			coll.Documents = ef.Documents
		} else if len(coll.Documents) != len(ef.Documents) {
			return nil, fmt.Errorf("collection %s: %d documents vs %d embedded documents: %w",
				name, len(coll.Documents), len(ef.Documents), ErrCountMismatch)
		}
		coll.Embeddings = ef.Embeddings
		coll.Model = ef.Model
		coll.Dimension = ef.Dimension
	}

	if len(coll.Documents) == 0 {
		return nil, fmt.Errorf("collection %s: %w", name, ErrEmptyCollection)
	}

	if files.KeywordIndex != "" {
		var kf keywordIndexFile
		if err := l.readJSON(files.KeywordIndex, &kf); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		if len(kf.Tokens) != len(coll.Documents) {
			return nil, fmt.Errorf("collection %s: %d tokenized rows vs %d documents: %w",
				name, len(kf.Tokens), len(coll.Documents), ErrCountMismatch)
		}
		coll.Tokens = kf.Tokens
	}

	l.logger.Info("Collection loaded",
		"collection", name,
		"documents", len(coll.Documents),
		"embedded", coll.HasEmbeddings(),
		"tokenized", coll.Tokens != nil,
	)
	return coll, nil
}

// checkEmbeddings 校验向量文件自身一致性以及模型
func (l *Loader) checkEmbeddings(name string, ef *embeddingFile) error {
	if len(ef.Documents) != len(ef.Embeddings) {
		return fmt.Errorf("collection %s: %d documents vs %d embeddings: %w",
			name, len(ef.Documents), len(ef.Embeddings), ErrCountMismatch)
	}
	if ef.Dimension <= 0 && len(ef.Embeddings) > 0 {
		ef.Dimension = len(ef.Embeddings[0])
	}
	for i, v := range ef.Embeddings {
		if len(v) != ef.Dimension {
			return fmt.Errorf("collection %s: embedding %d has %d dims, expected %d: %w",
				name, i, len(v), ef.Dimension, ErrDimensionMismatch)
		}
	}
	if l.embedModel != "" && ef.Model != "" && ef.Model != l.embedModel {
		return fmt.Errorf("collection %s: index built with %q but configured model is %q: %w",
			name, ef.Model, l.embedModel, ErrModelMismatch)
	}
	return nil
}

func (l *Loader) readJSON(file string, v any) error {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.cfg.Dir, file)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrIndexNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
