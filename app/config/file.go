package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// fileConfig mirrors Config for HCL files. Every attribute is optional;
// durations are strings such as "90s".
type fileConfig struct {
	Server     *serverBlock     `hcl:"server,block"`
	LLM        *llmBlock        `hcl:"llm,block"`
	Generation *generationBlock `hcl:"generation,block"`
	Store      *storeBlock      `hcl:"store,block"`
	Mongo      *mongoBlock      `hcl:"mongo,block"`
	Redis      *redisBlock      `hcl:"redis,block"`
	Dispatcher *dispatcherBlock `hcl:"dispatcher,block"`
	Log        *logBlock        `hcl:"log,block"`
}

type serverBlock struct {
	Host            *string `hcl:"host,optional"`
	Port            *int    `hcl:"port,optional"`
	ReadTimeout     *string `hcl:"read_timeout,optional"`
	WriteTimeout    *string `hcl:"write_timeout,optional"`
	ShutdownTimeout *string `hcl:"shutdown_timeout,optional"`
}

type llmBlock struct {
	Backend         *string  `hcl:"backend,optional"`
	BaseURL         *string  `hcl:"base_url,optional"`
	Model           *string  `hcl:"model,optional"`
	Timeout         *string  `hcl:"timeout,optional"`
	MaxRetries      *int     `hcl:"max_retries,optional"`
	BaseDelay       *string  `hcl:"base_delay,optional"`
	MaxConcurrent   *int64   `hcl:"max_concurrent,optional"`
	Temperature     *float64 `hcl:"temperature,optional"`
	TopP            *float64 `hcl:"top_p,optional"`
	TopK            *int     `hcl:"top_k,optional"`
	MaxOutputTokens *int     `hcl:"max_output_tokens,optional"`
}

type generationBlock struct {
	MaxRetries       *int    `hcl:"max_retries,optional"`
	BaseDelay        *string `hcl:"base_delay,optional"`
	MaxDelay         *string `hcl:"max_delay,optional"`
	StrictValidation *bool   `hcl:"strict_validation,optional"`
	ArchiveDir       *string `hcl:"archive_dir,optional"`
}

type storeBlock struct {
	Backend     *string   `hcl:"backend,optional"`
	SeedTargets *[]string `hcl:"seed_targets,optional"`
}

type mongoBlock struct {
	URI               *string `hcl:"uri,optional"`
	Database          *string `hcl:"database,optional"`
	TargetsCollection *string `hcl:"targets_collection,optional"`
}

type redisBlock struct {
	Addr      *string `hcl:"addr,optional"`
	DB        *int    `hcl:"db,optional"`
	KeyPrefix *string `hcl:"key_prefix,optional"`
}

type dispatcherBlock struct {
	Workers   *int `hcl:"workers,optional"`
	QueueSize *int `hcl:"queue_size,optional"`
}

type logBlock struct {
	Level *string `hcl:"level,optional"`
}

// applyFile overlays the HCL file at path onto cfg. Secrets are only read from the environment.
func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	var errs durationErrors
	if b := fc.Server; b != nil {
		set(&cfg.Server.Host, b.Host)
		set(&cfg.Server.Port, b.Port)
		errs.set(&cfg.Server.ReadTimeout, "server.read_timeout", b.ReadTimeout)
		errs.set(&cfg.Server.WriteTimeout, "server.write_timeout", b.WriteTimeout)
		errs.set(&cfg.Server.ShutdownTimeout, "server.shutdown_timeout", b.ShutdownTimeout)
	}
	if b := fc.LLM; b != nil {
		set(&cfg.LLM.Backend, b.Backend)
		set(&cfg.LLM.BaseURL, b.BaseURL)
		set(&cfg.LLM.Model, b.Model)
		errs.set(&cfg.LLM.Timeout, "llm.timeout", b.Timeout)
		set(&cfg.LLM.MaxRetries, b.MaxRetries)
		errs.set(&cfg.LLM.BaseDelay, "llm.base_delay", b.BaseDelay)
		set(&cfg.LLM.MaxConcurrent, b.MaxConcurrent)
		if b.Temperature != nil {
			cfg.LLM.Temperature = float32(*b.Temperature)
		}
		if b.TopP != nil {
			cfg.LLM.TopP = float32(*b.TopP)
		}
		set(&cfg.LLM.TopK, b.TopK)
		set(&cfg.LLM.MaxOutputTokens, b.MaxOutputTokens)
	}
	if b := fc.Generation; b != nil {
		set(&cfg.Generation.MaxRetries, b.MaxRetries)
		errs.set(&cfg.Generation.BaseDelay, "generation.base_delay", b.BaseDelay)
		errs.set(&cfg.Generation.MaxDelay, "generation.max_delay", b.MaxDelay)
		set(&cfg.Generation.StrictValidation, b.StrictValidation)
		set(&cfg.Generation.ArchiveDir, b.ArchiveDir)
	}
	if b := fc.Store; b != nil {
		set(&cfg.Store.Backend, b.Backend)
		set(&cfg.Store.SeedTargets, b.SeedTargets)
	}
	if b := fc.Mongo; b != nil {
		set(&cfg.Mongo.URI, b.URI)
		set(&cfg.Mongo.Database, b.Database)
		set(&cfg.Mongo.TargetsCollection, b.TargetsCollection)
	}
	if b := fc.Redis; b != nil {
		set(&cfg.Redis.Addr, b.Addr)
		set(&cfg.Redis.DB, b.DB)
		set(&cfg.Redis.KeyPrefix, b.KeyPrefix)
	}
	if b := fc.Dispatcher; b != nil {
		set(&cfg.Dispatcher.Workers, b.Workers)
		set(&cfg.Dispatcher.QueueSize, b.QueueSize)
	}
	if b := fc.Log; b != nil {
		set(&cfg.Log.Level, b.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config file %s: %w", path, errs)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

type durationErrors []string

func (e *durationErrors) set(dst *time.Duration, name string, v *string) {
	if v == nil {
		return
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		*e = append(*e, fmt.Sprintf("%s: %v", name, err))
		return
	}
	*dst = d
}

func (e durationErrors) Error() string {
	return fmt.Sprintf("invalid durations: %v", []string(e))
}
