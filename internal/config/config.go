// Package config loads the optional cognos.hcl runtime configuration.
//
//	runtime {
//	  allow_shell = true
//	  loop_limit  = 1000
//	  trace_level = "metrics"
//	  trace_file  = "trace.jsonl"
//	}
//
//	provider "openai" {
//	  url     = "https://api.openai.com/v1/chat/completions"
//	  model   = "gpt-4o-mini"
//	  api_key = env.OPENAI_API_KEY
//	}
//
//	sink "redis" {
//	  addr = "localhost:6379"
//	}
//
// Expressions are evaluated with an `env` object holding the process
// environment, so secrets never need to be written into the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/roach88/cognos/internal/effect"
	"github.com/roach88/cognos/internal/engine"
	"github.com/roach88/cognos/internal/trace"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "cognos.hcl"

// Config is the resolved runtime configuration.
type Config struct {
	AllowShell bool
	LoopLimit  int
	MaxDepth   int
	MaxTurns   int
	TraceLevel trace.Level
	TraceFile  string
	DB         string // SQLite run store path; empty disables it

	Provider Provider
	Redis    *Redis // nil when no redis sink is configured
	Metrics  string // listen address for /metrics; empty disables it
}

// Provider configures the generation backend.
type Provider struct {
	Name    string
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Redis configures the Redis trace sink.
type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	MaxLen   int64
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		AllowShell: true,
		LoopLimit:  engine.DefaultLoopLimit,
		MaxDepth:   engine.DefaultMaxDepth,
		MaxTurns:   engine.DefaultMaxTurns,
		TraceLevel: trace.LevelMetrics,
		Provider: Provider{
			Name:    "openai",
			URL:     effect.DefaultOpenAIURL,
			Model:   "gpt-4o-mini",
			Timeout: 120 * time.Second,
		},
	}
}

// hclFile is the decoding target for a configuration file.
type hclFile struct {
	Runtime   *hclRuntime   `hcl:"runtime,block"`
	Providers []hclProvider `hcl:"provider,block"`
	Sinks     []hclSink     `hcl:"sink,block"`
}

type hclRuntime struct {
	AllowShell  *bool   `hcl:"allow_shell,optional"`
	LoopLimit   *int    `hcl:"loop_limit,optional"`
	MaxDepth    *int    `hcl:"max_depth,optional"`
	MaxTurns    *int    `hcl:"max_turns,optional"`
	TraceLevel  *string `hcl:"trace_level,optional"`
	TraceFile   *string `hcl:"trace_file,optional"`
	DB          *string `hcl:"db,optional"`
	MetricsAddr *string `hcl:"metrics_addr,optional"`
}

type hclProvider struct {
	Name    string  `hcl:"name,label"`
	URL     *string `hcl:"url,optional"`
	Model   *string `hcl:"model,optional"`
	APIKey  *string `hcl:"api_key,optional"`
	Timeout *string `hcl:"timeout,optional"`
}

type hclSink struct {
	Type     string  `hcl:"type,label"`
	Addr     *string `hcl:"addr,optional"`
	Password *string `hcl:"password,optional"`
	DB       *int    `hcl:"db,optional"`
	Prefix   *string `hcl:"prefix,optional"`
	MaxLen   *int64  `hcl:"max_len,optional"`
}

// Load reads path. An empty path means DefaultFile, and a missing default
// file yields Default(); an explicitly named file must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path, Environ())
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Parse decodes an HCL document. filename is used in diagnostics only.
func Parse(src []byte, filename string, env map[string]string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &raw); diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}
	return raw.resolve()
}

func evalContext(env map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		envVal = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": envVal}}
}

func (f hclFile) resolve() (Config, error) {
	cfg := Default()

	if r := f.Runtime; r != nil {
		setIf(&cfg.AllowShell, r.AllowShell)
		setIf(&cfg.TraceFile, r.TraceFile)
		setIf(&cfg.DB, r.DB)
		setIf(&cfg.Metrics, r.MetricsAddr)
		for _, lim := range []struct {
			name string
			src  *int
			dst  *int
		}{
			{"loop_limit", r.LoopLimit, &cfg.LoopLimit},
			{"max_depth", r.MaxDepth, &cfg.MaxDepth},
			{"max_turns", r.MaxTurns, &cfg.MaxTurns},
		} {
			if lim.src == nil {
				continue
			}
			if *lim.src < 1 {
				return Config{}, fmt.Errorf("runtime.%s must be positive, got %d", lim.name, *lim.src)
			}
			*lim.dst = *lim.src
		}
		if r.TraceLevel != nil {
			level, err := trace.ParseLevel(*r.TraceLevel)
			if err != nil {
				return Config{}, fmt.Errorf("runtime.trace_level: %w", err)
			}
			cfg.TraceLevel = level
		}
	}

	switch len(f.Providers) {
	case 0:
	case 1:
		p := f.Providers[0]
		if p.Name != "openai" {
			return Config{}, fmt.Errorf("provider %q: only \"openai\" (OpenAI-compatible) is supported", p.Name)
		}
		cfg.Provider.Name = p.Name
		setIf(&cfg.Provider.URL, p.URL)
		setIf(&cfg.Provider.Model, p.Model)
		setIf(&cfg.Provider.APIKey, p.APIKey)
		if p.Timeout != nil {
			d, err := time.ParseDuration(*p.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("provider %q timeout: %w", p.Name, err)
			}
			cfg.Provider.Timeout = d
		}
	default:
		return Config{}, fmt.Errorf("at most one provider block is allowed, got %d", len(f.Providers))
	}

	for _, s := range f.Sinks {
		switch s.Type {
		case "redis":
			if cfg.Redis != nil {
				return Config{}, errors.New(`duplicate sink "redis"`)
			}
			r := &Redis{Addr: "localhost:6379"}
			setIf(&r.Addr, s.Addr)
			setIf(&r.Password, s.Password)
			setIf(&r.DB, s.DB)
			setIf(&r.Prefix, s.Prefix)
			setIf(&r.MaxLen, s.MaxLen)
			cfg.Redis = r
		default:
			return Config{}, fmt.Errorf("unknown sink type %q (want redis)", s.Type)
		}
	}
	return cfg, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
