package sampler

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func neutral(seed uint32) Params {
	return Params{TopK: 0, TopP: 1, Temperature: 1, RepeatPenalty: 1, PenaltyLastN: 64, Seed: seed}
}

func TestStageOrder(t *testing.T) {
	got := New(DefaultParams(), 2048).StageNames()
	want := []string{"top-k", "top-p", "temperature", "dist"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("default stages (-want +got):\n%s", diff)
	}

	p := DefaultParams()
	p.MinP = 0.05
	p.PresencePenalty = 0.5
	got = New(p, 2048).StageNames()
	want = []string{"top-k", "top-p", "min-p", "penalties", "temperature", "dist"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("full stages (-want +got):\n%s", diff)
	}
}

func TestTopKOneIsArgmax(t *testing.T) {
	logits := []float32{0.1, 3, 2.9, -1, 2.5}
	for seed := uint32(0); seed < 50; seed++ {
		p := DefaultParams()
		p.TopK = 1
		p.Seed = seed
		tok, err := New(p, 0).Sample(logits)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if tok != 1 {
			t.Fatalf("seed %d: got %d want 1", seed, tok)
		}
	}
}

func TestZeroTemperatureIsGreedy(t *testing.T) {
	p := neutral(7)
	p.Temperature = 0
	tok, err := New(p, 0).Sample([]float32{1, 1.5, 4, 3.9})
	if err != nil || tok != 2 {
		t.Fatalf("got %d, %v", tok, err)
	}
}

func TestSeedDeterminismAndReset(t *testing.T) {
	logits := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	draw := func(pl *Pipeline, n int) []int32 {
		out := make([]int32, n)
		for i := range out {
			tok, err := pl.Sample(logits)
			if err != nil {
				t.Fatalf("sample: %v", err)
			}
			pl.Accept(tok)
			out[i] = tok
		}
		return out
	}
	a := New(neutral(42), 0)
	b := New(neutral(42), 0)
	first := draw(a, 32)
	if diff := cmp.Diff(first, draw(b, 32)); diff != "" {
		t.Fatalf("same seed diverged:\n%s", diff)
	}
	a.Reset()
	if diff := cmp.Diff(first, draw(a, 32)); diff != "" {
		t.Fatalf("reset did not reseed:\n%s", diff)
	}
	c := New(neutral(43), 0)
	if cmp.Equal(first, draw(c, 32)) {
		t.Fatalf("different seeds produced identical sequences")
	}
}

func TestRepeatPenaltyDemotesAcceptedToken(t *testing.T) {
	p := neutral(1)
	p.Temperature = 0
	p.RepeatPenalty = 2
	pl := New(p, 0)
	logits := []float32{2.0, 1.9}
	if tok, _ := pl.Sample(logits); tok != 0 {
		t.Fatalf("before accept got %d", tok)
	}
	pl.Accept(0)
	if tok, _ := pl.Sample(logits); tok != 1 {
		t.Fatalf("after accept got %d, want penalized token skipped", tok)
	}
	pl.Reset()
	if tok, _ := pl.Sample(logits); tok != 0 {
		t.Fatalf("after reset got %d", tok)
	}
}

func TestPenaltyWindowSlides(t *testing.T) {
	p := neutral(1)
	p.Temperature = 0
	p.PenaltyLastN = 1
	p.FrequencyPenalty = 5
	pl := New(p, 0)
	logits := []float32{2.0, 1.0, 0.5}
	pl.Accept(0)
	if tok, _ := pl.Sample(logits); tok != 1 {
		t.Fatalf("got %d want 1", tok)
	}
	pl.Accept(1)
	if tok, _ := pl.Sample(logits); tok != 0 {
		t.Fatalf("token 0 should have left the window, got %d", tok)
	}
}

func TestPenaltyWholeContext(t *testing.T) {
	p := neutral(1)
	p.Temperature = 0
	p.PenaltyLastN = -1
	p.PresencePenalty = 10
	pl := New(p, 4)
	for _, tok := range []int32{0, 1, 2, 3} {
		pl.Accept(tok)
	}
	if tok, _ := pl.Sample([]float32{5, 4, 3, 2, 1}); tok != 4 {
		t.Fatalf("got %d want 4", tok)
	}
}

func TestMinPFilters(t *testing.T) {
	p := neutral(3)
	p.MinP = 0.5
	p.Temperature = 5
	pl := New(p, 0)
	for i := 0; i < 100; i++ {
		tok, err := pl.Sample([]float32{0, -10, -12})
		if err != nil || tok != 0 {
			t.Fatalf("draw %d: got %d, %v", i, tok, err)
		}
	}
}

func TestTopPKeepsAtLeastOne(t *testing.T) {
	p := neutral(9)
	p.TopP = 0
	tok, err := New(p, 0).Sample([]float32{0.5, 0.4, 3})
	if err != nil || tok != 2 {
		t.Fatalf("got %d, %v", tok, err)
	}
}

func TestDrawStaysInVocabulary(t *testing.T) {
	pl := New(neutral(11), 0)
	logits := make([]float32, 300)
	for i := range logits {
		logits[i] = float32(math.Sin(float64(i)))
	}
	for i := 0; i < 500; i++ {
		tok, err := pl.Sample(logits)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if tok < 0 || int(tok) >= len(logits) {
			t.Fatalf("token %d out of range", tok)
		}
	}
}

func TestEmptyLogits(t *testing.T) {
	if _, err := New(DefaultParams(), 0).Sample(nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestClamp(t *testing.T) {
	nan := float32(math.NaN())
	got := Params{
		TopK: -3, TopP: 7, MinP: -1, Temperature: -2,
		RepeatPenalty: nan, FrequencyPenalty: nan, PresencePenalty: nan,
		PenaltyLastN: -9,
	}.Clamp()
	want := Params{TopK: 0, TopP: 1, MinP: 0, Temperature: 0, RepeatPenalty: 1, PenaltyLastN: -1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clamp (-want +got):\n%s", diff)
	}
	if got := (Params{Temperature: nan, TopP: nan}).Clamp(); got.Temperature != 0.7 || got.TopP != 1 {
		t.Fatalf("NaN fallbacks = %+v", got)
	}
}
