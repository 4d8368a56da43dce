package manager

import (
	"context"
	"testing"
	"time"
)

func openDefault(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.resolveSession(testCtx(t), "", "")
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	return s
}

func TestBeginGeneration_QueueTimeout(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxQueueDepth: 1, MaxWait: 20 * time.Millisecond})
	s := openDefault(t, m)
	rel, err := m.beginGeneration(context.Background(), s)
	if err != nil {
		t.Fatalf("beginGeneration first: %v", err)
	}
	defer rel()
	// Second should timeout on queue slot (since depth=1)
	if _, err := m.beginGeneration(context.Background(), s); !IsTooBusy(err) {
		t.Fatalf("expected tooBusyError, got %v", err)
	}
}

func TestBeginGeneration_GenTimeout(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxQueueDepth: 2, MaxWait: 20 * time.Millisecond})
	s := openDefault(t, m)
	s.genCh <- struct{}{}
	defer func() { <-s.genCh }()
	if _, err := m.beginGeneration(context.Background(), s); !IsTooBusy(err) {
		t.Fatalf("expected tooBusyError on gen wait, got %v", err)
	}
	if len(s.queueCh) != 0 {
		t.Fatalf("queue slot leaked")
	}
}

func TestBeginGeneration_CanceledContext(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s := openDefault(t, m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.beginGeneration(ctx, s); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBeginGeneration_ClosedSessionAndDraining(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s := openDefault(t, m)
	m.mu.Lock()
	m.instances[s.ModelID].State = StateDraining
	m.mu.Unlock()
	if _, err := m.beginGeneration(context.Background(), s); !IsTooBusy(err) {
		t.Fatalf("expected tooBusy while draining, got %v", err)
	}
	m.mu.Lock()
	m.instances[s.ModelID].State = StateReady
	m.mu.Unlock()
	m.dropSession(s)
	if _, err := m.beginGeneration(context.Background(), s); !IsSessionNotFound(err) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
