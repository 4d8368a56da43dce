package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"llamactx/internal/llm"
	"llamactx/pkg/types"
)

func TestEnsureInstanceLoadsOnce(t *testing.T) {
	pub := NewMemoryPublisher()
	var mu sync.Mutex
	opens := 0
	base := toyOpen(toyOptions())
	m := newTestManager(t, ManagerConfig{Publisher: pub, Open: func(b, p string, o llm.ModelOptions) (llm.Model, error) {
		mu.Lock()
		opens++
		mu.Unlock()
		return base(b, p, o)
	}})
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureInstance(testCtx(t), "toy.toy")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if opens != 1 {
		t.Fatalf("model opened %d times", opens)
	}
	if !pub.Has("ensure_ready", "toy.toy") {
		t.Fatalf("missing ensure_ready event: %v", pub.Names())
	}
	st := m.Status()
	if len(st.Instances) != 1 || st.Instances[0].State != string(StateReady) || st.Instances[0].Sessions != 1 || st.LoadsTotal != 1 {
		t.Fatalf("status = %+v", st)
	}
	if snap := m.Snapshot(); snap.CurrentModel == nil || snap.CurrentModel.Backend != "toy" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestEnsureInstanceRealBackend(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	if err := m.EnsureInstance(testCtx(t), ""); err != nil {
		t.Fatalf("ensure default through llm.Open: %v", err)
	}
	if !m.Ready() {
		t.Fatalf("manager should be ready")
	}
}

func TestEnsureInstanceErrors(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	if err := m.EnsureInstance(testCtx(t), "nope"); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}

	unavailable := newTestManager(t, ManagerConfig{Open: func(string, string, llm.ModelOptions) (llm.Model, error) {
		return nil, fmt.Errorf("wrap: %w", llm.ErrBackendUnavailable)
	}})
	err := unavailable.EnsureInstance(testCtx(t), "toy.toy")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if unavailable.Ready() {
		t.Fatalf("failed load must not leave the manager ready")
	}
	if st := unavailable.Status(); len(st.Instances) != 0 || st.Error == "" || st.UsedMB != 0 {
		t.Fatalf("status after failed load = %+v", st)
	}

	broken := newTestManager(t, ManagerConfig{Open: func(string, string, llm.ModelOptions) (llm.Model, error) {
		return nil, errors.New("bad file")
	}})
	if err := broken.EnsureInstance(testCtx(t), "toy.toy"); err == nil || IsDependencyUnavailable(err) {
		t.Fatalf("expected plain load error, got %v", err)
	}
}

func TestReadyAndRegistry(t *testing.T) {
	m := New(nil, 0, 0, "")
	defer m.Close()
	if m.Ready() {
		t.Fatalf("empty manager must not be ready")
	}
	reg := []types.Model{{ID: "a.toy"}, {ID: "b.toy"}}
	m.SetRegistry(reg)
	got := m.ListModels()
	if diff := cmp.Diff(reg, got); diff != "" {
		t.Fatalf("models (-want +got):\n%s", diff)
	}
	got[0].ID = "mutated"
	if m.ListModels()[0].ID != "a.toy" {
		t.Fatalf("ListModels must return a copy")
	}
}

func TestSwitchLoadsInBackground(t *testing.T) {
	pub := NewMemoryPublisher()
	m := newTestManager(t, ManagerConfig{Publisher: pub})
	op, err := m.Switch(testCtx(t), "toy.toy")
	if err != nil || op == "" {
		t.Fatalf("switch: %q %v", op, err)
	}
	waitFor(t, func() bool { return pub.Has("switch_done", "toy.toy") })
	if !m.Ready() {
		t.Fatalf("not ready after switch")
	}
	if _, err := m.Switch(testCtx(t), "missing"); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}
