package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModelsCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.toy"), []byte("Q: hi\nA: Hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mistral-7b.Q4_K_M.gguf"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--models-dir", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := out.String()
	for _, want := range []string{"tiny.toy", "mistral-7b.Q4_K_M.gguf", "Q4_K_M", "mistral", "2.0 kB"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestGenerateToyModel(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "chat.toy")
	if err := os.WriteFile(model, []byte("Q: hi\nA: Hello world! Bye."), 0o644); err != nil {
		t.Fatal(err)
	}
	state := filepath.Join(dir, "chat.state")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"generate", "--log-level", "off", "-m", model, "-p", "Q: hi\nA:", "--top-k", "1", "--seed", "1", "--state-out", state})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := out.String(); got != " Hello world! Bye.\n" {
		t.Fatalf("stdout = %q", got)
	}
	if fi, err := os.Stat(state); err != nil || fi.Size() == 0 {
		t.Fatalf("state file not written: %v", err)
	}

	cmd = newRootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"generate", "--log-level", "off", "-m", model, "-p", "Q: hi\nA:", "--state-in", state, "-n", "2", "--top-k", "1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute with state: %v", err)
	}
}

func TestGenerateUnknownBackend(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"generate", "--log-level", "off", "-m", filepath.Join(t.TempDir(), "x.bin"), "-p", "hi"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
