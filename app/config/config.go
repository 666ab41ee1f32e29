package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendGemini       = "gemini"
	BackendOpenAICompat = "openai_compat"

	StoreMongo  = "mongo"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is resolved in order: Default, optional HCL file, environment, Validate.
// Fields without an environment value keep whatever the earlier layers set.
type Config struct {
	Server     HTTPServerConfig `envconfig:"SERVER"`
	LLM        LLMConfig        `envconfig:"LLM"`
	Generation GenerationConfig `envconfig:"GENERATION"`
	Store      StoreConfig      `envconfig:"STORE"`
	Mongo      MongoConfig      `envconfig:"MONGO"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Dispatcher DispatcherConfig `envconfig:"DISPATCHER"`
	Log        LogConfig        `envconfig:"LOG"`
}

type HTTPServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST"`
	Port            int           `envconfig:"SERVER_PORT"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
}

type LLMConfig struct {
	Backend         string        `envconfig:"LLM_BACKEND"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	APIKey          string        `envconfig:"LLM_API_KEY"`
	BaseURL         string        `envconfig:"LLM_BASE_URL"`
	Model           string        `envconfig:"LLM_MODEL"`
	Timeout         time.Duration `envconfig:"LLM_TIMEOUT"`
	MaxRetries      int           `envconfig:"LLM_MAX_RETRIES"`
	BaseDelay       time.Duration `envconfig:"LLM_BASE_DELAY"`
	MaxConcurrent   int64         `envconfig:"LLM_MAX_CONCURRENT"`
	Temperature     float32       `envconfig:"LLM_TEMPERATURE"`
	TopP            float32       `envconfig:"LLM_TOP_P"`
	TopK            int           `envconfig:"LLM_TOP_K"`
	MaxOutputTokens int           `envconfig:"LLM_MAX_OUTPUT_TOKENS"`
}

type GenerationConfig struct {
	MaxRetries       int           `envconfig:"GENERATION_MAX_RETRIES"`
	BaseDelay        time.Duration `envconfig:"GENERATION_BASE_DELAY"`
	MaxDelay         time.Duration `envconfig:"GENERATION_MAX_DELAY"`
	StrictValidation bool          `envconfig:"GENERATION_STRICT_VALIDATION"`
	ArchiveDir       string        `envconfig:"GENERATION_ARCHIVE_DIR"`
}

type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND"`
	// SeedTargets are registered as known targets by the memory and redis stores.
	SeedTargets []string `envconfig:"STORE_SEED_TARGETS"`
}

type MongoConfig struct {
	URI               string `envconfig:"MONGO_URI"`
	Database          string `envconfig:"MONGO_DB"`
	TargetsCollection string `envconfig:"MONGO_TARGETS_COLLECTION"`
}

type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX"`
}

type DispatcherConfig struct {
	Workers   int `envconfig:"DISPATCHER_WORKERS"`
	QueueSize int `envconfig:"DISPATCHER_QUEUE_SIZE"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL"`
}

func Default() *Config {
	return &Config{
		Server: HTTPServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Backend:         BackendGemini,
			Model:           "gemini-2.5-flash",
			Timeout:         180 * time.Second,
			MaxRetries:      3,
			BaseDelay:       time.Second,
			MaxConcurrent:   4,
			Temperature:     0.7,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
		Generation: GenerationConfig{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		},
		Store: StoreConfig{Backend: StoreMongo},
		Mongo: MongoConfig{
			URI:               "mongodb://localhost:27017",
			Database:          "docgen",
			TargetsCollection: "tasks",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "docgen",
		},
		Dispatcher: DispatcherConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Backend {
	case BackendGemini:
		if strings.TrimSpace(c.LLM.GeminiAPIKey) == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini backend"))
		}
	case BackendOpenAICompat:
		if strings.TrimSpace(c.LLM.BaseURL) == "" {
			errs = append(errs, errors.New("LLM_BASE_URL is required for the openai_compat backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm backend %q", c.LLM.Backend))
	}

	switch c.Store.Backend {
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DB are required for the mongo store"))
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("LLM_MODEL must not be empty"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.LLM.MaxRetries < 0 || c.Generation.MaxRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	if c.Generation.MaxDelay < c.Generation.BaseDelay {
		errs = append(errs, errors.New("GENERATION_MAX_DELAY must not be below GENERATION_BASE_DELAY"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// WorstCaseDuration is the longest a single Generate can take when every attempt times out.
func (c *Config) WorstCaseDuration() time.Duration {
	var innerBackoff time.Duration
	for i := 0; i < c.LLM.MaxRetries; i++ {
		innerBackoff += c.LLM.BaseDelay * time.Duration(1<<i)
	}
	perCall := time.Duration(c.LLM.MaxRetries+1)*c.LLM.Timeout + innerBackoff

	var outerBackoff time.Duration
	for i := 0; i < c.Generation.MaxRetries; i++ {
		outerBackoff += c.Generation.BaseDelay * time.Duration(1<<i)
	}
	return perCall*time.Duration(c.Generation.MaxRetries+1) + outerBackoff
}
