package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cognos/internal/trace"
)

func TestParse_Full(t *testing.T) {
	src := `
runtime {
  allow_shell  = false
  loop_limit   = 50
  max_turns    = 4
  trace_level  = "full"
  trace_file   = "out/trace.jsonl"
  db           = "runs.db"
  metrics_addr = ":9090"
}

provider "openai" {
  url     = "http://localhost:11434/v1/chat/completions"
  model   = "llama3"
  api_key = env.OPENAI_API_KEY
  timeout = "30s"
}

sink "redis" {
  addr    = "redis:6379"
  db      = 2
  prefix  = "cg:trace:"
  max_len = 500
}
`
	cfg, err := Parse([]byte(src), "cognos.hcl", map[string]string{"OPENAI_API_KEY": "sk-test"})
	require.NoError(t, err)

	assert.False(t, cfg.AllowShell)
	assert.Equal(t, 50, cfg.LoopLimit)
	assert.Equal(t, 256, cfg.MaxDepth, "unset values keep their defaults")
	assert.Equal(t, 4, cfg.MaxTurns)
	assert.Equal(t, trace.LevelFull, cfg.TraceLevel)
	assert.Equal(t, "out/trace.jsonl", cfg.TraceFile)
	assert.Equal(t, "runs.db", cfg.DB)
	assert.Equal(t, ":9090", cfg.Metrics)

	assert.Equal(t, Provider{
		Name:    "openai",
		URL:     "http://localhost:11434/v1/chat/completions",
		Model:   "llama3",
		APIKey:  "sk-test",
		Timeout: 30 * time.Second,
	}, cfg.Provider)

	require.NotNil(t, cfg.Redis)
	assert.Equal(t, Redis{Addr: "redis:6379", DB: 2, Prefix: "cg:trace:", MaxLen: 500}, *cfg.Redis)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil, "empty.hcl", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RedisDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`sink "redis" {}`), "cognos.hcl", nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestParse_EnvInterpolation(t *testing.T) {
	src := `
provider "openai" {
  model = "${env.MODEL_PREFIX}-mini"
}
`
	cfg, err := Parse([]byte(src), "cognos.hcl", map[string]string{"MODEL_PREFIX": "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `runtime {`, "failed to parse config"},
		{"unknown attribute", "runtime {\n  colour = 1\n}\n", "failed to decode config"},
		{"missing env var", "provider \"openai\" {\n  api_key = env.NOPE\n}\n", "failed to decode config"},
		{"bad trace level", "runtime {\n  trace_level = \"loud\"\n}\n", "unknown trace level"},
		{"non-positive limit", "runtime {\n  loop_limit = 0\n}\n", "runtime.loop_limit must be positive"},
		{"unknown provider", "provider \"acme\" {}\n", `provider "acme"`},
		{"two providers", "provider \"openai\" {}\nprovider \"openai\" {}\n", "at most one provider"},
		{"bad timeout", "provider \"openai\" {\n  timeout = \"soon\"\n}\n", "timeout"},
		{"unknown sink", "sink \"kafka\" {}\n", `unknown sink type "kafka"`},
		{"duplicate sink", "sink \"redis\" {}\nsink \"redis\" {}\n", "duplicate sink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "cognos.hcl", map[string]string{"HOME": "/root"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.hcl")
	require.NoError(t, os.WriteFile(path, []byte("runtime {\n  max_depth = 12\n}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxDepth)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_DefaultFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("runtime {\n  allow_shell = false\n}\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.AllowShell)
}

func TestEnviron(t *testing.T) {
	t.Setenv("COGNOS_TEST_VAR", "a=b")
	assert.Equal(t, "a=b", Environ()["COGNOS_TEST_VAR"], "only the first = separates key and value")
}
