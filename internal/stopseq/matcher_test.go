package stopseq

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindEarliestAcrossPhrases(t *testing.T) {
	m := New("world", "lo w", "")
	i, ok := m.Find("Hello world")
	if !ok || i != 3 {
		t.Fatalf("got %d,%v want 3,true", i, ok)
	}
	if got := "Hello world"[:i]; got != "Hel" {
		t.Fatalf("truncated = %q", got)
	}
}

func TestSingleStopTruncates(t *testing.T) {
	m := New("world")
	i, ok := m.Find("Hello world")
	if !ok || "Hello world"[:i] != "Hello " {
		t.Fatalf("got %d,%v", i, ok)
	}
}

func TestEmptyPhrasesIgnored(t *testing.T) {
	m := New("", "")
	if !m.Empty() {
		t.Fatalf("expected empty matcher")
	}
	if _, ok := m.Check("anything"); ok {
		t.Fatalf("empty matcher matched")
	}
	var nilM *Matcher
	if !nilM.Empty() || nilM.Phrases() != nil {
		t.Fatalf("nil matcher should be empty")
	}
}

func TestDuplicatesCollapsed(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "b"}, New("a", "b", "a").Phrases()); diff != "" {
		t.Fatalf("phrases:\n%s", diff)
	}
}

// Incremental checks must agree with a full scan on every prefix.
func TestCheckMatchesFullScan(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog; END of story"
	phrases := []string{"lazy", "END", "ox j", "story"}
	for step := 1; step <= 5; step++ {
		inc := New(phrases...)
		full := New(phrases...)
		var sb strings.Builder
		for pos := 0; pos < len(text); pos += step {
			sb.WriteString(text[pos:min(pos+step, len(text))])
			gi, gok := inc.Check(sb.String())
			wi, wok := full.Find(sb.String())
			if gi != wi || gok != wok {
				t.Fatalf("step %d at %q: incremental %d,%v full %d,%v", step, sb.String(), gi, gok, wi, wok)
			}
			if gok {
				break
			}
		}
	}
}

func TestPhraseSpanningPieces(t *testing.T) {
	m := New("STOP")
	for _, s := range []string{"abc S", "abc ST", "abc STO"} {
		if _, ok := m.Check(s); ok {
			t.Fatalf("premature match on %q", s)
		}
	}
	i, ok := m.Check("abc STOP!")
	if !ok || i != 4 {
		t.Fatalf("got %d,%v", i, ok)
	}
	m.Rewind()
	if i, ok := m.Check("STOP"); !ok || i != 0 {
		t.Fatalf("after rewind got %d,%v", i, ok)
	}
}
