package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/document-chunker/internal/agent"
	"github.com/feichai0017/document-chunker/internal/agent/document/image"
	"github.com/feichai0017/document-chunker/internal/agent/document/quality"
	"github.com/feichai0017/document-chunker/internal/agent/document/xlsx"
	"github.com/feichai0017/document-chunker/internal/agent/embedding"
	"github.com/feichai0017/document-chunker/internal/agent/splitter"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Redis     RedisConfig        `yaml:"redis"`
	Storage   StorageConfig      `yaml:"storage"`
	Textract  TextractConfig     `yaml:"textract"`
	OCR       OCRConfig          `yaml:"ocr"`
	Embedding embedding.Config   `yaml:"embedding"`
	Splitter  splitter.Config    `yaml:"splitter"`
	Quality   quality.Thresholds `yaml:"quality"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	Log       logger.Config      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// MaxUploadSize bounds multipart uploads in bytes.
	MaxUploadSize int64 `yaml:"maxUploadSize"`
}

type RedisConfig struct {
	Addr        string         `yaml:"addr"`
	Password    string         `yaml:"password"`
	DB          int            `yaml:"db"`
	Concurrency int            `yaml:"concurrency"`
	Queues      map[string]int `yaml:"queues"`
	StatusTTL   time.Duration  `yaml:"statusTTL"`
}

type StorageConfig struct {
	// Type is "s3" or "minio".
	Type  string      `yaml:"type"`
	S3    S3Config    `yaml:"s3"`
	Minio MinioConfig `yaml:"minio"`
}

type OCRConfig struct {
	// Engine is tesseract, textract or none.
	Engine    string                `yaml:"engine"`
	Enabled   bool                  `yaml:"enabled"`
	Page      image.OCRConfig       `yaml:"page"`
	Tesseract image.TesseractConfig `yaml:"tesseract"`
}

type PipelineConfig struct {
	OCRTimeout       time.Duration `yaml:"ocrTimeout"`
	EmbeddingTimeout time.Duration `yaml:"embeddingTimeout"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	MaxFetchBytes    int64         `yaml:"maxFetchBytes"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	ProcessTimeout   time.Duration `yaml:"processTimeout"`
	RetentionPeriod  time.Duration `yaml:"retentionPeriod"`
	Sheets           xlsx.Limits   `yaml:"sheets"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			MaxUploadSize:   50 << 20,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Concurrency: 10,
			Queues:      map[string]int{"critical": 6, "default": 3, "low": 1},
			StatusTTL:   24 * time.Hour,
		},
		Storage:  StorageConfig{Type: "s3"},
		Textract: TextractConfig{MinConfidence: 80, EnableTable: true},
		OCR: OCRConfig{
			Engine:    agent.EngineTesseract,
			Page:      image.DefaultOCRConfig(),
			Tesseract: image.DefaultTesseractConfig(),
		},
		Embedding: embedding.DefaultConfig(),
		Splitter:  splitter.DefaultConfig(),
		Quality:   quality.DefaultThresholds(),
		Pipeline: PipelineConfig{
			OCRTimeout:       10 * time.Minute,
			EmbeddingTimeout: 2 * time.Minute,
			FetchTimeout:     time.Minute,
			MaxFetchBytes:    100 << 20,
			MaxConcurrent:    5,
			ProcessTimeout:   30 * time.Minute,
			RetentionPeriod:  24 * time.Hour,
			Sheets:           xlsx.DefaultLimits(),
		},
		Log: *logger.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides, including those from a .env file. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	loadDotenv()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")
	setString(&c.Storage.Type, "STORAGE_TYPE")
	c.Storage.S3 = c.Storage.S3.withEnv()
	c.Storage.Minio = c.Storage.Minio.withEnv()
	c.Textract = c.Textract.withEnv()
	setString(&c.OCR.Engine, "OCR_ENGINE")
	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")
}

// Factory converts the OCR and quality sections into processor settings.
func (c *Config) Factory() agent.FactoryConfig {
	return agent.FactoryConfig{
		OCR:       c.OCR.Page,
		OCREngine: c.OCR.Engine,
		EnableOCR: c.OCR.Enabled,
		Tesseract: c.OCR.Tesseract,
		Textract:  c.Textract.Engine(),
		Quality:   c.Quality,
		Sheets:    c.Pipeline.Sheets,
	}
}

// Options returns the per-document timeouts.
func (c *Config) Options() agent.Options {
	return agent.Options{
		OCRTimeout:       c.Pipeline.OCRTimeout,
		EmbeddingTimeout: c.Pipeline.EmbeddingTimeout,
		FetchTimeout:     c.Pipeline.FetchTimeout,
	}
}

var dotenvOnce sync.Once

// loadDotenv loads the .env file at the project root once. Variables
// already set in the environment win.
func loadDotenv() {
	dotenvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		envPath := filepath.Join(filepath.Dir(filepath.Dir(filename)), ".env")
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}
	})
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
