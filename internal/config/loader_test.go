package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"llamactx/internal/inference"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: :9999
models_dir: /tmp
state_dir: /state
vram_budget_mb: 123
default_model: m1
max_wait: 2s
session_ttl: 1m
context:
  n_ctx: 1024
generation:
  temperature: 0
  stop: ["\n\n"]
cors:
  enabled: true
  origins: ["http://localhost:3000"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp" || cfg.StateDir != "/state" || cfg.VRAMBudgetMB != 123 || cfg.DefaultModel != "m1" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxWait.Duration != 2*time.Second || cfg.SessionTTL.Duration != time.Minute {
		t.Fatalf("durations: %v %v", cfg.MaxWait, cfg.SessionTTL)
	}
	if cfg.Context.NCtx == nil || *cfg.Context.NCtx != 1024 {
		t.Fatalf("context.n_ctx not parsed: %+v", cfg.Context)
	}
	if cfg.Generation.Temperature == nil || *cfg.Generation.Temperature != 0 {
		t.Fatalf("explicit zero temperature lost: %+v", cfg.Generation)
	}
	if diff := cmp.Diff([]string{"\n\n"}, cfg.Generation.Stop); diff != "" {
		t.Fatalf("stop (-want +got):\n%s", diff)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Origins) != 1 {
		t.Fatalf("cors: %+v", cfg.CORS)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","vram_budget_mb":42,"vram_margin_mb":2,"default_model":"m2","max_wait":"500ms","generation":{"top_k":1,"seed":7}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelsDir != "/m" || cfg.VRAMBudgetMB != 42 || cfg.VRAMMarginMB != 2 || cfg.DefaultModel != "m2" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxWait.Duration != 500*time.Millisecond {
		t.Fatalf("max_wait = %v", cfg.MaxWait)
	}
	if *cfg.Generation.TopK != 1 || *cfg.Generation.Seed != 7 {
		t.Fatalf("generation: %+v", cfg.Generation)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodels_dir=\"/x\"\nvram_budget_mb=9\nvram_margin_mb=1\ndefault_model=\"m3\"\nsession_ttl=\"90s\"\n[context]\nthreads=2\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" || cfg.VRAMBudgetMB != 9 || cfg.VRAMMarginMB != 1 || cfg.DefaultModel != "m3" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.SessionTTL.Duration != 90*time.Second || *cfg.Context.Threads != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "dur.yaml", "max_wait: soon\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestMergeDefaults(t *testing.T) {
	cfg := Config{Addr: ":1", Generation: inference.GenerateParams{Stop: []string{"b"}}}
	base := Default()
	base.Generation.Stop = []string{"a"}
	base.Context.NCtx = inference.Ptr(512)
	got := cfg.Merge(base)
	if got.Addr != ":1" || got.ModelsDir != base.ModelsDir || got.MaxWait != base.MaxWait {
		t.Fatalf("merge: %+v", got)
	}
	if *got.Context.NCtx != 512 {
		t.Fatalf("context not merged")
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.Generation.Stop); diff != "" {
		t.Fatalf("stop (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLAMACTX_ADDR", ":4242")
	t.Setenv("LLAMACTX_MODELS_DIR", "/env/models")
	t.Setenv("LLAMACTX_LOG_LEVEL", "debug")
	got := Default().ApplyEnv()
	if got.Addr != ":4242" || got.ModelsDir != "/env/models" || got.LogLevel != "debug" {
		t.Fatalf("env not applied: %+v", got)
	}
}
