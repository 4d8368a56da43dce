package manager

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
	"llamactx/internal/toymodel"
	"llamactx/pkg/types"
)

const (
	testCorpus = "Q: hi\nA: Hello world! Bye."
	testPrompt = "Q: hi\nA:"
	testAnswer = " Hello world! Bye."
)

// writeCorpus creates a .toy model file and returns its registry entry.
func writeCorpus(t *testing.T, dir, name string) types.Model {
	t.Helper()
	p := filepath.Join(dir, name+".toy")
	if err := os.WriteFile(p, []byte(testCorpus), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return types.Model{ID: name + ".toy", Name: name, Path: p, Backend: "toy", SizeBytes: int64(len(testCorpus))}
}

// newTestManager fills in a single toy model as the default when cfg has
// no registry, and closes the manager on cleanup.
func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = []types.Model{writeCorpus(t, t.TempDir(), "toy")}
		cfg.DefaultModel = "toy.toy"
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// toyOpen builds models in memory with fault injection.
func toyOpen(opts toymodel.Options) OpenFunc {
	return func(backend, path string, _ llm.ModelOptions) (llm.Model, error) {
		return toymodel.New(filepath.Base(path), testCorpus, opts), nil
	}
}

func greedyRequest(prompt string) types.InferRequest {
	return types.InferRequest{Prompt: prompt, Stream: true, TopK: inference.Ptr(1), Seed: inference.Ptr(int64(1))}
}

type lines struct {
	tokens []types.TokenLine
	final  *types.FinalLine
	errln  *types.ErrorLine
}

func parseLines(t *testing.T, b []byte) lines {
	t.Helper()
	var out lines
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		raw := sc.Bytes()
		var probe map[string]any
		if err := json.Unmarshal(raw, &probe); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", raw, err)
		}
		switch {
		case probe["error"] != nil:
			var e types.ErrorLine
			_ = json.Unmarshal(raw, &e)
			out.errln = &e
		case probe["done"] == true:
			var f types.FinalLine
			_ = json.Unmarshal(raw, &f)
			out.final = &f
		default:
			var tl types.TokenLine
			_ = json.Unmarshal(raw, &tl)
			out.tokens = append(out.tokens, tl)
		}
	}
	return out
}

// errWriter writes once, then returns an error on subsequent writes.
type errWriter struct{ wrote int }

func (e *errWriter) Write(p []byte) (int, error) {
	if e.wrote == 0 {
		e.wrote += len(p)
		return len(p), nil
	}
	return 0, errors.New("write fail")
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func toyOptions() toymodel.Options { return toymodel.Options{} }

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
