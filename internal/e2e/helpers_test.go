package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"llamactx/internal/httpapi"
	"llamactx/internal/manager"
	"llamactx/internal/registry"
	_ "llamactx/internal/toymodel"
)

const corpus = "Q: hi\nA: Hello world! Bye."

// createToyModelsDir writes one toy corpus per name and returns the
// directory and the model IDs (filenames).
func createToyModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id := n + ".toy"
		if err := os.WriteFile(filepath.Join(dir, id), []byte(corpus), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", id, err)
		}
		ids = append(ids, id)
	}
	return dir, ids
}

// newServerForDir scans modelsDir into cfg.Registry and serves a manager over it.
func newServerForDir(t *testing.T, modelsDir string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg.Registry = reg
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
