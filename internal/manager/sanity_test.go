package manager

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"llamactx/internal/llamacpp"
	"llamactx/pkg/types"
)

func TestSanityCheckReportsBackends(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	r := m.SanityCheck()
	if r.NativeBackend != llamacpp.Built || r.Models != 1 || r.DefaultThreads < 1 {
		t.Fatalf("report = %+v", r)
	}
	found := false
	for _, b := range r.Backends {
		found = found || b == "toy"
	}
	if !found || r.Error != "" {
		t.Fatalf("report = %+v", r)
	}
}

func TestSanityCheckFlagsMissingNativeBackend(t *testing.T) {
	if llamacpp.Built {
		t.Skip("native backend compiled in")
	}
	m := newTestManager(t, ManagerConfig{Registry: []types.Model{{ID: "m.gguf", Backend: "llama"}}, DefaultModel: "m.gguf"})
	if r := m.SanityCheck(); r.Error == "" {
		t.Fatalf("expected an error for a GGUF default without the llama tag")
	}
	if err := m.EnsureInstance(testCtx(t), "m.gguf"); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestCloseWritesLRUMetadata(t *testing.T) {
	dir := t.TempDir()
	reg := []types.Model{writeCorpus(t, t.TempDir(), "toy")}
	m := NewWithConfig(ManagerConfig{Registry: reg, DefaultModel: "toy.toy", StateDir: dir})
	if err := m.EnsureInstance(testCtx(t), ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "lru.json"))
	if err != nil {
		t.Fatalf("lru file: %v", err)
	}
	var recs map[string]lruRecord
	if err := json.Unmarshal(b, &recs); err != nil || recs["toy.toy"].EstVRAMMB != 1 {
		t.Fatalf("records = %+v, %v", recs, err)
	}
	// A later manager falls back to the recorded estimate when the file is gone.
	if err := os.Remove(reg[0].Path); err != nil {
		t.Fatal(err)
	}
	m2 := newTestManager(t, ManagerConfig{Registry: reg, DefaultModel: "toy.toy", StateDir: dir})
	if got := m2.estimateVRAMMB(reg[0]); got != 1 {
		t.Fatalf("estimate = %d", got)
	}
}
