package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snaps"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTemp(t)
	state := bytes.Repeat([]byte("kv-cache-page "), 500)
	meta, err := s.Put("sess-1", "tiny", state)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if meta.DiskBytes >= int64(len(state)) {
		t.Fatalf("expected compression, disk=%d raw=%d", meta.DiskBytes, len(state))
	}
	got, gm, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, state) {
		t.Fatalf("state mismatch")
	}
	if gm.Model != "tiny" || gm.RawBytes != len(state) || !gm.CreatedAt.Equal(s.now()) {
		t.Fatalf("meta = %+v", gm)
	}
}

func TestGetMissingAndInvalidKey(t *testing.T) {
	s := openTemp(t)
	if _, _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, k := range []string{"", "../escape", "a/b", ".hidden"} {
		if _, err := s.Put(k, "m", []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", k, err)
		}
	}
}

func TestChecksumDetectsTampering(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Put("k", "m", []byte("original state")); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(s.Dir(), "k"+ext)
	b, _ := os.ReadFile(p)
	b[5] ^= 0xff
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get("k"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if err := os.WriteFile(p, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get("k"); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTemp(t)
	for _, k := range []string{"b", "a", "c"} {
		if _, err := s.Put(k, "m", []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(s.Dir(), "stray.txt"), []byte("x"), 0o644)
	list, err := s.List()
	if err != nil || len(list) != 3 || list[0].Key != "a" || list[2].Key != "c" {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if list, _ := s.List(); len(list) != 2 {
		t.Fatalf("after delete: %+v", list)
	}
}
