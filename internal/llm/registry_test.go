package llm

import (
	"errors"
	"testing"
)

func TestRegistryOpenUnknown(t *testing.T) {
	r := &Registry{}
	if _, err := r.Open("nope", "x", DefaultModelOptions()); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestRegistryRegisterAndOpen(t *testing.T) {
	r := &Registry{}
	var gotPath string
	var gotOpts ModelOptions
	r.Register("fake", func(path string, opts ModelOptions) (Model, error) {
		gotPath, gotOpts = path, opts
		return nil, errors.New("boom")
	})
	r.Register("alpha", func(string, ModelOptions) (Model, error) { return nil, nil })
	_, err := r.Open("fake", "/m.bin", ModelOptions{GPULayers: 3})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("loader error not propagated: %v", err)
	}
	if gotPath != "/m.bin" || gotOpts.GPULayers != 3 {
		t.Fatalf("loader args = %q %+v", gotPath, gotOpts)
	}
	if b := r.Backends(); len(b) != 2 || b[0] != "alpha" || b[1] != "fake" {
		t.Fatalf("backends = %v", b)
	}
}
